package exchange

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/smtp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Sender delivers rendered forecast files to the downstream receivers. A
// declined delivery is reported as false so the caller simply withholds the
// shipment record; it is never an error.
type Sender interface {
	SendToInternal(ctx context.Context, data []byte, filename, recipient string) bool
	SendEigenverbrauchToPartner(ctx context.Context, data []byte, date time.Time) bool
	SendResidualLongToPartner(ctx context.Context, data []byte, date time.Time) bool
}

// SMTPConfig configures the internal schedule-management email channel.
type SMTPConfig struct {
	Host     string
	Port     int
	Email    string
	Password string
	// Enabled false short-circuits sends as successful. Used outside
	// production so dry runs still exercise the full pipeline.
	Enabled bool
}

// EmailSender mails forecast CSVs to the internal schedule management. The
// SMTP session is serialized; the relay rejects concurrent logins from the
// same account.
type EmailSender struct {
	cfg SMTPConfig
	mu  sync.Mutex
	log zerolog.Logger
}

// NewEmailSender creates a sender over the given SMTP relay.
func NewEmailSender(cfg SMTPConfig, log zerolog.Logger) *EmailSender {
	return &EmailSender{cfg: cfg, log: log.With().Str("component", "email_sender").Logger()}
}

// Send mails the data as a CSV attachment named filename.
func (s *EmailSender) Send(recipient, filename string, data []byte) bool {
	if !s.cfg.Enabled {
		s.log.Info().Str("recipient", recipient).Str("file", filename).Msg("Sending disabled, reporting success")
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg := buildAttachmentMail(s.cfg.Email, recipient, filename, data)
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Email, s.cfg.Password, s.cfg.Host)
	if err := smtp.SendMail(addr, auth, s.cfg.Email, []string{recipient}, msg); err != nil {
		s.log.Error().Str("recipient", recipient).Str("file", filename).Err(err).Msg("Email delivery declined")
		return false
	}
	s.log.Info().Str("recipient", recipient).Str("file", filename).Msg("Sent forecast email")
	return true
}

// buildAttachmentMail assembles a multipart message with one CSV attachment.
// The subject doubles as the file name, which is what the receiving desk
// files deliveries by.
func buildAttachmentMail(from, to, filename string, data []byte) []byte {
	const boundary = "prognos-attachment"
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", filename)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%s\r\n", boundary)
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "--%s\r\n", boundary)
	fmt.Fprintf(&b, "Content-Type: text/csv; name=%q\r\n", filename)
	b.WriteString("Content-Transfer-Encoding: base64\r\n")
	fmt.Fprintf(&b, "Content-Disposition: attachment; filename=%q\r\n", filename)
	b.WriteString("\r\n")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String())
}

// DeliverySender is the production Sender: email towards the internal desk,
// file-store uploads towards the trading partner.
type DeliverySender struct {
	email   *EmailSender
	partner *PartnerUploader
}

// NewDeliverySender combines the two outbound channels.
func NewDeliverySender(email *EmailSender, partner *PartnerUploader) *DeliverySender {
	return &DeliverySender{email: email, partner: partner}
}

func (s *DeliverySender) SendToInternal(_ context.Context, data []byte, filename, recipient string) bool {
	return s.email.Send(recipient, filename, data)
}

func (s *DeliverySender) SendEigenverbrauchToPartner(ctx context.Context, data []byte, date time.Time) bool {
	return s.partner.UploadEigenverbrauch(ctx, data, date)
}

func (s *DeliverySender) SendResidualLongToPartner(ctx context.Context, data []byte, date time.Time) bool {
	return s.partner.UploadResidualLong(ctx, data, date)
}
