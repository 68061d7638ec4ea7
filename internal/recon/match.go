package recon

import (
	"fmt"

	"github.com/harborview/posrecon/internal/domain"
)

// MatchResult partitions two position collections: pairs present in both,
// and orphans present on only one side. Order follows source A's input
// order for pairs and A-orphans, source B's for B-orphans.
type MatchResult struct {
	Pairs      []MatchedPair
	MissingInB []domain.Position // present only in A
	MissingInA []domain.Position // present only in B
}

// MatchedPair holds the two positions sharing one MatchKey.
type MatchedPair struct {
	Key domain.MatchKey
	A   domain.Position
	B   domain.Position
}

type index struct {
	byKey map[domain.MatchKey]domain.Position
	order []domain.MatchKey
}

// buildIndex maps MatchKey to one position per key for a single source.
// Duplicate keys (split lots) are aggregated: quantities and market values
// summed, first-seen price and currency kept, in original input order.
// Positions with no resolvable identifier are excluded and reported as
// diagnostics instead of silently dropped.
func buildIndex(source domain.SourceID, positions []domain.Position, diags *[]domain.Diagnostic) index {
	idx := index{byKey: make(map[domain.MatchKey]domain.Position, len(positions))}

	for _, p := range positions {
		key, ok := p.Key()
		if !ok {
			*diags = append(*diags, domain.Diagnostic{
				Kind:   domain.DiagUnresolvableKey,
				Source: source,
				Message: fmt.Sprintf(
					"position in account %s has no cusip, isin, or ticker; excluded from matching",
					p.AccountID,
				),
			})
			continue
		}

		existing, dup := idx.byKey[key]
		if !dup {
			idx.byKey[key] = p
			idx.order = append(idx.order, key)
			continue
		}

		existing.Quantity = existing.Quantity.Add(p.Quantity)
		existing.MarketValue = existing.MarketValue.Add(p.MarketValue)
		idx.byKey[key] = existing

		*diags = append(*diags, domain.Diagnostic{
			Kind:   domain.DiagAggregationNotice,
			Source: source,
			Key:    key.String(),
			Message: fmt.Sprintf(
				"duplicate key %s aggregated (lot-level detail masked)", key,
			),
		})
	}

	return idx
}

// match pairs source A against source B by MatchKey.
func match(pairID domain.SourcePair, a, b []domain.Position, diags *[]domain.Diagnostic) MatchResult {
	idxA := buildIndex(pairID.Source, a, diags)
	idxB := buildIndex(pairID.Target, b, diags)
	return matchIndexes(idxA, idxB)
}

// matchIndexes pairs two prebuilt indexes. Indexes are built once per
// source even when a source participates in several pairs, so per-record
// diagnostics are reported once.
func matchIndexes(idxA, idxB index) MatchResult {
	var res MatchResult
	for _, key := range idxA.order {
		posA := idxA.byKey[key]
		if posB, ok := idxB.byKey[key]; ok {
			res.Pairs = append(res.Pairs, MatchedPair{Key: key, A: posA, B: posB})
		} else {
			res.MissingInB = append(res.MissingInB, posA)
		}
	}
	for _, key := range idxB.order {
		if _, ok := idxA.byKey[key]; !ok {
			res.MissingInA = append(res.MissingInA, idxB.byKey[key])
		}
	}
	return res
}
