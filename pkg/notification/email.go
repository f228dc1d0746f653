package notification

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"html/template"
	"net/smtp"

	"governance-backend/internal/config"
	"governance-backend/pkg/logger"
)

// EmailSender SMTP邮件发送器
type EmailSender struct {
	config *config.EmailConfig
}

// NewEmailSender 创建邮件发送器
func NewEmailSender(cfg *config.EmailConfig) *EmailSender {
	return &EmailSender{config: cfg}
}

// AlertEmail 告警邮件模板数据
type AlertEmail struct {
	Title     string
	Body      string
	Emergency bool
}

const alertTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>{{.Title}}</title></head>
<body style="font-family: Arial, sans-serif; color: #333;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <div style="background: {{if .Emergency}}#f44336{{else}}#2196F3{{end}}; color: white; padding: 16px; text-align: center;">
      <h2>{{.Title}}</h2>
    </div>
    <pre style="background: #f9f9f9; padding: 16px; white-space: pre-wrap;">{{.Body}}</pre>
    <p style="color: #666; font-size: 12px;">This is an automated governance alert. Please do not reply.</p>
  </div>
</body>
</html>`

var alertTmpl = template.Must(template.New("alert").Parse(alertTemplate))

// RenderAlert 渲染告警邮件正文
func RenderAlert(data AlertEmail) (string, error) {
	var body bytes.Buffer
	if err := alertTmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("failed to execute email template: %w", err)
	}
	return body.String(), nil
}

// SendAlert 发送告警邮件
func (s *EmailSender) SendAlert(to, subject string, data AlertEmail) error {
	body, err := RenderAlert(data)
	if err != nil {
		logger.Error("SendAlert Error: ", err, "to", to)
		return err
	}
	if err := s.sendSMTP(to, s.buildMessage(to, subject, body)); err != nil {
		logger.Error("SendAlert SMTP Error: ", err, "to", to, "subject", subject)
		return err
	}
	logger.Info("SendAlert: ", "to", to, "subject", subject)
	return nil
}

// buildMessage 构建邮件消息
func (s *EmailSender) buildMessage(to, subject, body string) string {
	return fmt.Sprintf("From: %s <%s>\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"MIME-Version: 1.0\r\n"+
		"Content-Type: text/html; charset=\"UTF-8\"\r\n"+
		"\r\n%s",
		s.config.FromName, s.config.FromEmail, to, subject, body)
}

// sendSMTP 通过SMTP over TLS发送邮件
func (s *EmailSender) sendSMTP(to, message string) error {
	addr := fmt.Sprintf("%s:%d", s.config.SMTPHost, s.config.SMTPPort)
	auth := smtp.PlainAuth("", s.config.SMTPUsername, s.config.SMTPPassword, s.config.SMTPHost)

	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.config.SMTPHost})
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.config.SMTPHost)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Quit()

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}
	if err := client.Mail(s.config.FromEmail); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	if _, err := writer.Write([]byte(message)); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}
	return nil
}
