package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/harborview/posrecon/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// maxBreaksPerMessage caps the detail lines in one Slack message; the rest
// are summarized in a trailing count.
const maxBreaksPerMessage = 10

// Dispatcher delivers breaks at or above a minimum severity. Critical/High
// go to the Slack webhook immediately; the email body is rendered for the
// surrounding mailer. A nil or empty webhook URL disables posting.
type Dispatcher struct {
	WebhookURL string
	Recipients []string
	Client     *http.Client
}

func NewDispatcher(webhookURL string, recipients []string) *Dispatcher {
	return &Dispatcher{
		WebhookURL: webhookURL,
		Recipients: recipients,
		Client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Dispatch selects the run's breaks at or above min and delivers them. A
// run with nothing above the threshold produces no message.
func (d *Dispatcher) Dispatch(run *domain.ReconciliationRun, min domain.Severity) error {
	selected := run.BreaksWithMinSeverity(min)
	if len(selected) == 0 {
		log.Info().Str("run_id", run.ID).Msg("no breaks at alert severity, nothing to dispatch")
		return nil
	}

	msg := SlackMessage(run, selected)

	if d.WebhookURL == "" {
		log.Warn().
			Str("run_id", run.ID).
			Int("breaks", len(selected)).
			Msg("no webhook configured, alert logged only")
		return nil
	}

	payload, err := json.Marshal(map[string]string{"text": msg})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := d.Client.Post(d.WebhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}

	log.Info().
		Str("run_id", run.ID).
		Int("breaks", len(selected)).
		Msg("alert dispatched")
	return nil
}

// SlackMessage renders the webhook text for a set of breaks.
func SlackMessage(run *domain.ReconciliationRun, breaks []domain.Break) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*POSITION RECONCILIATION ALERT*\n")
	fmt.Fprintf(&b, "Run: %s (%s)\n", run.ID, run.RunDate)
	fmt.Fprintf(&b, "Breaks requiring attention: %d\n", len(breaks))

	shown := breaks
	if len(shown) > maxBreaksPerMessage {
		shown = shown[:maxBreaksPerMessage]
	}
	for _, brk := range shown {
		fmt.Fprintf(&b, "\n*[%s]* %s (%s, %s)\n", brk.Severity, brk.Key.SecurityID, brk.Key.AccountID, brk.Pair)
		fmt.Fprintf(&b, "- Type: %s\n", brk.Type)
		fmt.Fprintf(&b, "- Impact: $%s (%s%%)\n", brk.ImpactUSD.StringFixed(2), brk.VariancePct.Mul(hundred).StringFixed(2))
		fmt.Fprintf(&b, "- %s\n", brk.Description)
	}
	if len(breaks) > maxBreaksPerMessage {
		fmt.Fprintf(&b, "\n…and %d more\n", len(breaks)-maxBreaksPerMessage)
	}
	return b.String()
}

// EmailBody renders the plain-text email form of an alert for the
// surrounding mailer to deliver.
func EmailBody(run *domain.ReconciliationRun, breaks []domain.Break) (subject, body string) {
	subject = fmt.Sprintf("[URGENT] Position Recon %s: %d breaks detected", run.RunDate, len(breaks))
	var b strings.Builder
	fmt.Fprintf(&b, "%d position breaks require immediate attention.\n\n", len(breaks))
	for _, brk := range breaks {
		fmt.Fprintf(&b, "%-10s %s %-8s %-22s $%s\n",
			brk.ID, brk.Severity, brk.Key.SecurityID, brk.Type, brk.ImpactUSD.StringFixed(2))
	}
	return subject, b.String()
}
