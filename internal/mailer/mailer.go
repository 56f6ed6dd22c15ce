package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"

	"campusrides/internal/domain"
)

// Config holds SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends booking emails over plain SMTP. Implements domain.Mailer.
type SMTPMailer struct {
	config Config
	logger *zerolog.Logger
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func New(config Config, logger *zerolog.Logger) *SMTPMailer {
	return &SMTPMailer{
		config: config,
		logger: logger,
		send:   smtp.SendMail,
	}
}

func (m *SMTPMailer) SendBookingReceipt(ctx context.Context, details domain.MailDetails) error {
	subject := fmt.Sprintf("Booking received: %s", details.BookingReference)
	body := fmt.Sprintf(
		"Hi %s,\n\nWe received your booking %s.\n\n%s\n\nYour booking is pending confirmation by the ride provider.\n",
		details.RiderName, details.BookingReference, tripSummary(details))
	return m.deliver(ctx, details.RiderEmail, subject, body)
}

func (m *SMTPMailer) SendBookingConfirmation(ctx context.Context, details domain.MailDetails) error {
	subject := fmt.Sprintf("Booking confirmed: %s", details.BookingReference)
	body := fmt.Sprintf(
		"Hi %s,\n\nYour booking %s is confirmed.\n\n%s\n\nSee you at the pickup point.\n",
		details.RiderName, details.BookingReference, tripSummary(details))
	return m.deliver(ctx, details.RiderEmail, subject, body)
}

func (m *SMTPMailer) SendBookingRejection(ctx context.Context, details domain.MailDetails) error {
	subject := fmt.Sprintf("Booking not confirmed: %s", details.BookingReference)
	reason := details.Reason
	if reason == "" {
		reason = "the provider could not accommodate your booking"
	}
	body := fmt.Sprintf(
		"Hi %s,\n\nUnfortunately your booking %s was not confirmed: %s.\n\n%s\n\nAny reserved seats have been released.\n",
		details.RiderName, details.BookingReference, reason, tripSummary(details))
	return m.deliver(ctx, details.RiderEmail, subject, body)
}

func (m *SMTPMailer) deliver(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := buildMessage(m.config.From, to, subject, body)
	addr := fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)

	var auth smtp.Auth
	if m.config.Username != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}

	if err := m.send(addr, auth, m.config.From, []string{to}, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	m.logger.Debug().Str("to", to).Str("subject", subject).Msg("mail sent")
	return nil
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

func tripSummary(details domain.MailDetails) string {
	return fmt.Sprintf(
		"Trip: %s to %s\nDate: %s at %s\nSeats: %d\nTotal: %.2f",
		details.PickupLocation, details.Destination,
		details.Date, details.Time,
		details.Seats, details.TotalPrice)
}
