package ingestion

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harborview/posrecon/internal/domain"
	"github.com/harborview/posrecon/internal/repository"
)

// IngestResult is returned from a successful ingestion.
type IngestResult struct {
	FileID          string `json:"file_id"`
	RecordsIngested int    `json:"records_ingested"`
	TradeDate       string `json:"trade_date"`
	AlreadyIngested bool   `json:"already_ingested,omitempty"`
}

// Service stages position files from the book-of-record, brokers, and
// custodians until a reconciliation run consumes them.
type Service struct {
	positionRepo *repository.PositionRepo
}

// NewService creates a new ingestion service.
func NewService(positionRepo *repository.PositionRepo) *Service {
	return &Service{positionRepo: positionRepo}
}

// IngestFile parses a position file and stages its positions.
//
// format must be one of: internal_csv, broker_csv, custodian_json
func (s *Service) IngestFile(data []byte, source domain.SourceID, format string) (*IngestResult, error) {
	// Idempotency check via file hash.
	hash := fmt.Sprintf("%x", sha256.Sum256(data))
	exists, err := s.positionRepo.FileExistsByHash(hash)
	if err != nil {
		return nil, fmt.Errorf("check hash: %w", err)
	}
	if exists {
		return &IngestResult{AlreadyIngested: true}, nil
	}

	var positions []domain.Position
	var kind domain.SourceKind

	switch format {
	case "internal_csv":
		positions, err = ParseInternalCSV(data, source)
		kind = domain.KindInternal
	case "broker_csv":
		positions, err = ParseBrokerCSV(data, source)
		kind = domain.KindPrimeBroker
	case "custodian_json":
		positions, err = ParseCustodianJSON(data, source)
		kind = domain.KindCustodian
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", format, err)
	}
	if len(positions) == 0 {
		return nil, fmt.Errorf("file contains no positions")
	}

	tradeDate := positions[0].TradeDate.Format("2006-01-02")
	fileID := fmt.Sprintf("PF-%s-%d", source, time.Now().UnixNano())

	file := &repository.PositionFile{
		ID:          fileID,
		Source:      source,
		Kind:        kind,
		FileHash:    hash,
		RecordCount: len(positions),
		TradeDate:   tradeDate,
		IngestedAt:  time.Now(),
	}
	if err := s.positionRepo.InsertFile(file); err != nil {
		return nil, fmt.Errorf("insert file: %w", err)
	}

	inserted, err := s.positionRepo.BulkInsert(fileID, positions)
	if err != nil {
		return nil, fmt.Errorf("insert positions: %w", err)
	}

	log.Info().
		Str("file_id", fileID).
		Str("source", string(source)).
		Str("trade_date", tradeDate).
		Int("records", inserted).
		Msg("ingested position file")

	return &IngestResult{
		FileID:          fileID,
		RecordsIngested: inserted,
		TradeDate:       tradeDate,
	}, nil
}
