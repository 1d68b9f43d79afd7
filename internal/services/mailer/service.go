// -----------------------------------------------------------------------
// Mailer Service - delivers reports over SMTP
// Settings come from [mail], overridden by smtp_ keys in KeyValue storage
// -----------------------------------------------------------------------

package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	gomail "gopkg.in/mail.v2"

	"github.com/stock-programmer/limit-up-review/internal/common"
	"github.com/stock-programmer/limit-up-review/internal/interfaces"
)

// ErrNotConfigured is returned when host, sender or recipients are missing.
var ErrNotConfigured = errors.New("mail is not configured")

// Config holds the resolved SMTP configuration
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	To       []string
	UseTLS   bool
}

// Sender delivers composed messages. *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Service sends report e-mails
type Service struct {
	base      common.MailConfig
	kvStorage interfaces.KeyValueStorage
	dial      func(*Config) Sender
	logger    arbor.ILogger
}

// NewService creates a new mailer service. kvStorage may be nil.
func NewService(base common.MailConfig, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) *Service {
	return &Service{
		base:      base,
		kvStorage: kvStorage,
		dial:      newDialer,
		logger:    logger,
	}
}

func newDialer(config *Config) Sender {
	d := gomail.NewDialer(config.Host, config.Port, config.Username, config.Password)
	d.Timeout = 30 * time.Second
	if config.UseTLS {
		d.StartTLSPolicy = gomail.MandatoryStartTLS
	}
	return d
}

// GetConfig layers smtp_* KeyValue entries over the [mail] section.
func (s *Service) GetConfig(ctx context.Context) (*Config, error) {
	config := &Config{
		Host:     s.base.Host,
		Port:     s.base.Port,
		Username: s.base.Username,
		Password: s.base.Password,
		From:     s.base.From,
		FromName: "Limit-Up Review",
		To:       append([]string(nil), s.base.To...),
		UseTLS:   true,
	}
	if config.Port == 0 {
		config.Port = 587
	}
	if s.kvStorage == nil {
		return config, nil
	}

	get := func(key string) (string, bool) {
		value, err := s.kvStorage.Get(ctx, key)
		if err != nil || strings.TrimSpace(value) == "" {
			return "", false
		}
		return strings.TrimSpace(value), true
	}

	if host, ok := get("smtp_host"); ok {
		config.Host = host
	}
	if portStr, ok := get("smtp_port"); ok {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid smtp_port %q: %w", portStr, err)
		}
		config.Port = port
	}
	if username, ok := get("smtp_username"); ok {
		config.Username = username
	}
	if password, ok := get("smtp_password"); ok {
		config.Password = password
	}
	if from, ok := get("smtp_from"); ok {
		config.From = from
	}
	if fromName, ok := get("smtp_from_name"); ok {
		config.FromName = fromName
	}
	if to, ok := get("smtp_to"); ok {
		config.To = nil
		for _, addr := range strings.Split(to, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				config.To = append(config.To, addr)
			}
		}
	}
	if tlsStr, ok := get("smtp_use_tls"); ok {
		config.UseTLS = strings.ToLower(tlsStr) == "true" || tlsStr == "1"
	}

	return config, nil
}

// IsConfigured checks if SMTP is configured with minimum required settings
func (s *Service) IsConfigured(ctx context.Context) bool {
	config, err := s.GetConfig(ctx)
	if err != nil {
		return false
	}
	return config.Host != "" && config.From != "" && len(config.To) > 0
}

// SendReport mails a Markdown report as HTML with a plain text alternative.
// attachments are file paths.
func (s *Service) SendReport(ctx context.Context, subject, markdown string, attachments []string) error {
	config, err := s.GetConfig(ctx)
	if err != nil {
		return err
	}
	if config.Host == "" || config.From == "" || len(config.To) == 0 {
		return ErrNotConfigured
	}

	htmlBody, err := MarkdownToHTML(markdown)
	if err != nil {
		return fmt.Errorf("failed to render mail body: %w", err)
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", config.From, config.FromName)
	m.SetHeader("To", config.To...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", markdown)
	m.AddAlternative("text/html", htmlBody)
	for _, path := range attachments {
		m.Attach(path)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.dial(config).DialAndSend(m); err != nil {
		s.logger.Error().
			Err(err).
			Str("host", config.Host).
			Int("port", config.Port).
			Str("subject", subject).
			Msg("Failed to send report e-mail")
		return fmt.Errorf("failed to send e-mail: %w", err)
	}

	s.logger.Info().
		Str("subject", subject).
		Strs("to", config.To).
		Int("attachments", len(attachments)).
		Msg("Report e-mail sent")
	return nil
}

// MarkdownToHTML renders Markdown into a styled HTML e-mail body.
func MarkdownToHTML(markdown string) (string, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
		),
	)

	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return wrapInEmailTemplate(buf.String()), nil
}

func wrapInEmailTemplate(content string) string {
	return `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <style>
    body { font-family: -apple-system, 'PingFang SC', 'Microsoft YaHei', Arial, sans-serif; line-height: 1.6; color: #333; max-width: 960px; margin: 0 auto; padding: 20px; }
    h1 { font-size: 22px; border-bottom: 2px solid #eee; padding-bottom: 8px; }
    h2 { font-size: 18px; margin-top: 24px; }
    h3 { font-size: 15px; margin-top: 18px; }
    table { border-collapse: collapse; width: 100%; margin: 12px 0; font-size: 13px; }
    th, td { border: 1px solid #ddd; padding: 6px 10px; text-align: left; }
    th { background: #f4f4f4; }
  </style>
</head>
<body>
` + content + `
</body>
</html>`
}
