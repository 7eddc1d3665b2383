package reporter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mail "gopkg.in/mail.v2"

	"github.com/wpsteward/steward/pkg/config"
	"github.com/wpsteward/steward/pkg/log"
	"github.com/wpsteward/steward/pkg/metrics"
)

// Sender delivers one completion report. Satisfied by the SMTP mailer;
// tests substitute fakes.
type Sender interface {
	Send(to, subject string, result map[string]any) error
}

// SMTPMailer sends completion reports through a configured SMTP relay.
type SMTPMailer struct {
	dialer *mail.Dialer
	from   string
}

// NewSMTPMailer builds a mailer from SMTP configuration.
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	dialer := mail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass)
	dialer.Timeout = 15 * time.Second
	if cfg.StartTLS {
		dialer.StartTLSPolicy = mail.MandatoryStartTLS
	} else {
		dialer.StartTLSPolicy = mail.OpportunisticStartTLS
	}
	return &SMTPMailer{dialer: dialer, from: cfg.From}
}

// Send composes and delivers the report email.
func (m *SMTPMailer) Send(to, subject string, result map[string]any) error {
	msg := mail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", FormatBody(result))
	return m.dialer.DialAndSend(msg)
}

// FormatBody renders the report as readable plain text: a header, the
// pretty-printed result, and quick credentials when the result carries
// them.
func FormatBody(result map[string]any) string {
	pretty, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		pretty = []byte(fmt.Sprintf("%v", result))
	}

	lines := []string{"WordPress Provisioning Report", "", string(pretty)}

	if admin, ok := result["admin_user"].(string); ok {
		lines = append(lines, "", "Admin User: "+admin)
	}
	dbUser, hasUser := result["db_user"].(string)
	dbName, hasName := result["db_name"].(string)
	if hasUser && hasName {
		lines = append(lines, fmt.Sprintf("DB: %s / %s", dbName, dbUser))
	}

	return strings.Join(lines, "\n")
}

// Report emails a finished task's result to the operator. A delivery
// failure never fails the task; instead the stored result is wrapped so
// the failure is visible to whoever reads it.
func Report(sender Sender, to, kind string, result map[string]any) map[string]any {
	if sender == nil || to == "" {
		return result
	}
	if result == nil {
		result = map[string]any{}
	}

	subject := fmt.Sprintf("[steward] Task %s completed", kind)
	if err := sender.Send(to, subject, result); err != nil {
		log.WithComponent("reporter").Error().Err(err).Str("kind", kind).Msg("report email failed")
		metrics.ReportsSent.WithLabelValues("error").Inc()
		return map[string]any{
			"_original":    result,
			"_email_error": err.Error(),
		}
	}
	metrics.ReportsSent.WithLabelValues("sent").Inc()
	return result
}
