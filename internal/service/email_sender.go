package service

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-mail/mail/v2"
	"github.com/sirupsen/logrus"
)

type EmailSender struct {
	dialer  *mail.Dialer
	logger  *logrus.Logger
	enabled bool
}

func NewEmailSender(logger *logrus.Logger) *EmailSender {
	smtpHost := os.Getenv("SMTP_HOST")
	smtpPortStr := os.Getenv("SMTP_PORT")
	smtpUser := os.Getenv("SMTP_USER")
	smtpPass := os.Getenv("SMTP_PASS")
	enabled := os.Getenv("EMAIL_SENDER_ENABLED") == "true"
	insecureSkipVerify := os.Getenv("INSECURE_SKIP_VERIFY") == "true"

	smtpPort := 587
	if smtpPortStr != "" {
		port, err := strconv.Atoi(smtpPortStr)
		if err != nil {
			logger.Fatalf("Invalid SMTP_PORT: %v", err)
		}
		smtpPort = port
	}

	d := mail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPass)
	d.TLSConfig = &tls.Config{
		ServerName:         smtpHost,
		InsecureSkipVerify: insecureSkipVerify,
	}

	return &EmailSender{
		dialer:  d,
		logger:  logger,
		enabled: enabled,
	}
}

func (es *EmailSender) SendWithdrawalDecisionNotification(email string, amount int64, status string) error {
	if !es.enabled {
		es.logger.Warn("Email notifications are disabled")
		return nil
	}

	subject := fmt.Sprintf("Your withdrawal request was %s", status)
	content := fmt.Sprintf(`
		<h1>Withdrawal Request Update</h1>
		<p>Status: <strong>%s</strong></p>
		<p>Amount: <strong>%s</strong></p>
		<p>Date: <strong>%s</strong></p>
		<small>This is an automated notification, please do not reply</small>
	`, status, formatMinorUnits(amount), time.Now().Format("02.01.2006 15:04"))

	return es.sendEmail(email, subject, content)
}

func (es *EmailSender) SendDisputeResolutionNotification(email, fineStatus string) error {
	if !es.enabled {
		es.logger.Warn("Email notifications are disabled")
		return nil
	}

	subject := "Your fine dispute has been resolved"
	content := fmt.Sprintf(`
		<h1>Dispute Resolution</h1>
		<p>Your fine is now: <strong>%s</strong></p>
		<p>Date: <strong>%s</strong></p>
		<small>This is an automated notification, please do not reply</small>
	`, fineStatus, time.Now().Format("02.01.2006 15:04"))

	return es.sendEmail(email, subject, content)
}

func (es *EmailSender) SendDebtCreatedNotification(email string, amount int64, dueDate time.Time) error {
	if !es.enabled {
		es.logger.Warn("Email notifications are disabled")
		return nil
	}

	subject := "An unpaid fine became an outstanding debt"
	content := fmt.Sprintf(`
		<h1>Outstanding Debt Notice</h1>
		<p>Original amount: <strong>%s</strong></p>
		<p>Payment was due: <strong>%s</strong></p>
		<p>A late fee of 2.5%% of the original amount accrues for every full week past the due date.</p>
		<small>This is an automated notification, please do not reply</small>
	`, formatMinorUnits(amount), dueDate.Format("02.01.2006"))

	return es.sendEmail(email, subject, content)
}

func (es *EmailSender) SendDebtSettledNotification(email string, amount int64) error {
	if !es.enabled {
		es.logger.Warn("Email notifications are disabled")
		return nil
	}

	subject := "Your debt has been settled"
	content := fmt.Sprintf(`
		<h1>Debt Settled</h1>
		<p>Amount paid: <strong>%s</strong></p>
		<p>Date: <strong>%s</strong></p>
		<small>This is an automated notification, please do not reply</small>
	`, formatMinorUnits(amount), time.Now().Format("02.01.2006 15:04"))

	return es.sendEmail(email, subject, content)
}

func (es *EmailSender) sendEmail(to, subject, body string) error {
	m := mail.NewMessage()
	m.SetHeader("From", os.Getenv("SMTP_USER"))
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := es.dialer.DialAndSend(m); err != nil {
		es.logger.WithError(err).Error("Failed to send email")
		return fmt.Errorf("failed to send email: %w", err)
	}

	es.logger.Infof("Email sent to %s", to)
	return nil
}

// formatMinorUnits renders an amount held in minor units as major.minor.
func formatMinorUnits(amount int64) string {
	return fmt.Sprintf("%d.%02d", amount/100, amount%100)
}
