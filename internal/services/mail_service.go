package services

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"html/template"
	"log"
	"net"
	"net/smtp"
	"time"

	"github.com/spf13/viper"
)

// Mailer delivers OTP and confirmation emails. Implementations never panic
// past this boundary; delivery failure is a value the orchestrator inspects.
type Mailer interface {
	SendOTPEmail(to, otpCode string, data PaymentEmailData) error
	SendPaymentConfirmation(to string, data ConfirmationEmailData) error
}

// PaymentEmailData carries the payment context rendered into the OTP mail.
type PaymentEmailData struct {
	StudentID     string
	StudentName   string
	Semester      string
	AcademicYear  string
	TuitionAmount int64
}

// ConfirmationEmailData carries the receipt rendered after settlement.
type ConfirmationEmailData struct {
	TransactionID string
	StudentID     string
	StudentName   string
	Semester      string
	AcademicYear  string
	Amount        int64
	NewBalance    int64
}

// SMTPConfig holds SMTP connection and sender identity settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// SMTPConfigFromViper resolves smtp.* settings with defaults.
func SMTPConfigFromViper() SMTPConfig {
	viper.SetDefault("smtp.port", 587)
	viper.SetDefault("smtp.from_name", "iBanking System")
	return SMTPConfig{
		Host:     viper.GetString("smtp.host"),
		Port:     viper.GetInt("smtp.port"),
		Username: viper.GetString("smtp.username"),
		Password: viper.GetString("smtp.password"),
		From:     viper.GetString("smtp.from"),
		FromName: viper.GetString("smtp.from_name"),
	}
}

type smtpMailer struct {
	cfg        SMTPConfig
	otpTpl     *template.Template
	receiptTpl *template.Template
}

// NewSMTPMailer builds the production Mailer over STARTTLS SMTP.
func NewSMTPMailer(cfg SMTPConfig) Mailer {
	return &smtpMailer{
		cfg:        cfg,
		otpTpl:     template.Must(template.New("otp").Parse(otpEmailTemplate)),
		receiptTpl: template.Must(template.New("receipt").Parse(receiptEmailTemplate)),
	}
}

const otpEmailTemplate = `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>iBanking Tuition Payment System</h2>
  <h3>OTP Verification Code</h3>
  <div style="background-color: #f8f9fa; padding: 20px; border-radius: 5px;">
    <p><strong>Your OTP Code:</strong></p>
    <h1 style="font-size: 32px; letter-spacing: 5px; text-align: center;">{{.Code}}</h1>
  </div>
  <div style="background-color: #e8f5e8; padding: 15px; border-radius: 5px;">
    <p><strong>Payment Details:</strong></p>
    <p>Student: {{.Data.StudentName}} ({{.Data.StudentID}})</p>
    <p>Semester: {{.Data.Semester}} / {{.Data.AcademicYear}}</p>
    <p>Tuition Amount: {{.Data.TuitionAmount}} VND</p>
  </div>
  <p>This code expires in 5 minutes. Never share it with anyone.</p>
</div>`

const receiptEmailTemplate = `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>iBanking Tuition Payment System</h2>
  <h3>Payment Confirmation</h3>
  <div style="background-color: #e8f5e8; padding: 15px; border-radius: 5px;">
    <p>Transaction: {{.TransactionID}}</p>
    <p>Student: {{.StudentName}} ({{.StudentID}})</p>
    <p>Semester: {{.Semester}} / {{.AcademicYear}}</p>
    <p>Amount Paid: {{.Amount}} VND</p>
    <p>Remaining Balance: {{.NewBalance}} VND</p>
  </div>
  <p>This is an automated message. Please do not reply to this email.</p>
</div>`

func (m *smtpMailer) SendOTPEmail(to, otpCode string, data PaymentEmailData) error {
	var body bytes.Buffer
	err := m.otpTpl.Execute(&body, struct {
		Code string
		Data PaymentEmailData
	}{otpCode, data})
	if err != nil {
		return err
	}
	return m.send(to, "Banking System - OTP Verification Code", body.String())
}

func (m *smtpMailer) SendPaymentConfirmation(to string, data ConfirmationEmailData) error {
	var body bytes.Buffer
	if err := m.receiptTpl.Execute(&body, data); err != nil {
		return err
	}
	return m.send(to, "Banking System - Payment Confirmation", body.String())
}

func (m *smtpMailer) send(to, subject, htmlBody string) error {
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s <%s>\r\n", m.cfg.FromName, m.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	msg.WriteString(htmlBody)
	msg.WriteString("\r\n")

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return err
	}
	defer c.Quit()

	if ok, _ := c.Extension("STARTTLS"); ok {
		tlsCfg := &tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}
		if err = c.StartTLS(tlsCfg); err != nil {
			return err
		}
	}

	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err = c.Auth(auth); err != nil {
			return err
		}
	}

	if err = c.Mail(m.cfg.From); err != nil {
		return err
	}
	if err = c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err = w.Write(msg.Bytes()); err != nil {
		return err
	}
	if err = w.Close(); err != nil {
		return err
	}

	log.Printf("[MAIL] Sent %q to %s", subject, to)
	return nil
}
