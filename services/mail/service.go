package mail

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	htmlTemplate "html/template"
	"os"
	"path/filepath"
	textTemplate "text/template"
	"time"

	"github.com/tech-arch1tect/authd/config"
	"github.com/tech-arch1tect/authd/services/logging"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

const (
	PasswordResetTemplate = "password_reset"
	PasswordResetSubject  = "Reset your password"
)

//go:embed templates/*.html templates/*.txt
var defaultTemplates embed.FS

// Sender is the part of the go-mail client the service needs.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

type Service struct {
	config        *config.MailConfig
	client        Sender
	htmlTemplates *htmlTemplate.Template
	textTemplates *textTemplate.Template
	logger        *logging.Service
}

type TemplateData map[string]any

func NewService(cfg *config.MailConfig, logger *logging.Service) (*Service, error) {
	if cfg.Host == "" {
		return nil, errors.New("MAIL_HOST is required")
	}

	clientOpts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(15 * time.Second),
	}

	if cfg.Username != "" {
		clientOpts = append(clientOpts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	switch cfg.Encryption {
	case "ssl":
		clientOpts = append(clientOpts, mail.WithSSL())
	case "none":
		clientOpts = append(clientOpts, mail.WithTLSPortPolicy(mail.NoTLS))
	default:
		clientOpts = append(clientOpts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	}

	client, err := mail.NewClient(cfg.Host, clientOpts...)
	if err != nil {
		logger.Error("failed to create mail client",
			zap.Error(err),
			zap.String("host", cfg.Host),
			zap.Int("port", cfg.Port))
		return nil, fmt.Errorf("failed to create mail client: %w", err)
	}

	logger.Info("mail service initialized",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("encryption", cfg.Encryption))

	return NewServiceWithClient(cfg, logger, client)
}

func NewServiceWithClient(cfg *config.MailConfig, logger *logging.Service, client Sender) (*Service, error) {
	if cfg.FromAddress == "" {
		logger.Error("mail service initialization failed: FROM_ADDRESS is required")
		return nil, errors.New("MAIL_FROM_ADDRESS is required")
	}

	service := &Service{
		config: cfg,
		client: client,
		logger: logger,
	}

	if err := service.loadTemplates(); err != nil {
		logger.Error("failed to load mail templates", zap.Error(err))
		return nil, fmt.Errorf("failed to load mail templates: %w", err)
	}

	return service, nil
}

// loadTemplates parses the embedded defaults, then lets files in TemplatesDir override them.
func (s *Service) loadTemplates() error {
	var err error
	s.htmlTemplates, err = htmlTemplate.ParseFS(defaultTemplates, "templates/*.html")
	if err != nil {
		return fmt.Errorf("failed to parse HTML templates: %w", err)
	}
	s.textTemplates, err = textTemplate.ParseFS(defaultTemplates, "templates/*.txt")
	if err != nil {
		return fmt.Errorf("failed to parse text templates: %w", err)
	}

	if s.config.TemplatesDir == "" {
		return nil
	}

	if _, err := os.Stat(s.config.TemplatesDir); err != nil {
		return fmt.Errorf("templates directory: %w", err)
	}

	if files, _ := filepath.Glob(filepath.Join(s.config.TemplatesDir, "*.html")); len(files) > 0 {
		if s.htmlTemplates, err = s.htmlTemplates.ParseFiles(files...); err != nil {
			return fmt.Errorf("failed to parse HTML templates: %w", err)
		}
	}
	if files, _ := filepath.Glob(filepath.Join(s.config.TemplatesDir, "*.txt")); len(files) > 0 {
		if s.textTemplates, err = s.textTemplates.ParseFiles(files...); err != nil {
			return fmt.Errorf("failed to parse text templates: %w", err)
		}
	}

	s.logger.Info("mail templates loaded", zap.String("templates_dir", s.config.TemplatesDir))
	return nil
}

func (s *Service) NewMessage() (*mail.Msg, error) {
	message := mail.NewMsg()

	if s.config.FromName != "" {
		if err := message.FromFormat(s.config.FromName, s.config.FromAddress); err != nil {
			return nil, fmt.Errorf("failed to set FROM address: %w", err)
		}
	} else if err := message.From(s.config.FromAddress); err != nil {
		return nil, fmt.Errorf("failed to set FROM address: %w", err)
	}

	return message, nil
}

func (s *Service) Send(ctx context.Context, message *mail.Msg) error {
	startTime := time.Now()
	err := s.client.DialAndSendWithContext(ctx, message)
	duration := time.Since(startTime)

	if err != nil {
		s.logger.Error("failed to send email",
			zap.Error(err),
			zap.Duration("attempt_duration", duration))
		return err
	}

	s.logger.Info("email sent", zap.Duration("send_duration", duration))
	return nil
}

func (s *Service) SendTemplate(ctx context.Context, templateName string, to []string, subject string, data TemplateData) error {
	message, err := s.NewMessage()
	if err != nil {
		return err
	}

	if err := message.To(to...); err != nil {
		return fmt.Errorf("failed to set TO addresses: %w", err)
	}

	message.Subject(subject)

	if err := s.renderTemplate(templateName, data, message); err != nil {
		s.logger.Error("failed to render template", zap.Error(err), zap.String("template", templateName))
		return fmt.Errorf("failed to render template: %w", err)
	}

	return s.Send(ctx, message)
}

// SendPasswordReset mails the reset link. The link carries the raw secret and is never logged.
func (s *Service) SendPasswordReset(ctx context.Context, to, resetURL string) error {
	return s.SendTemplate(ctx, PasswordResetTemplate, []string{to}, PasswordResetSubject, TemplateData{
		"ResetURL": resetURL,
	})
}

func (s *Service) renderTemplate(templateName string, data TemplateData, message *mail.Msg) error {
	var hasHTML bool

	if tmpl := s.htmlTemplates.Lookup(templateName + ".html"); tmpl != nil {
		var htmlBuf bytes.Buffer
		if err := tmpl.Execute(&htmlBuf, data); err != nil {
			return fmt.Errorf("failed to execute HTML template: %w", err)
		}
		message.SetBodyString(mail.TypeTextHTML, htmlBuf.String())
		hasHTML = true
	}

	tmpl := s.textTemplates.Lookup(templateName + ".txt")
	if tmpl == nil {
		if hasHTML {
			return nil
		}
		return fmt.Errorf("template '%s' not found", templateName)
	}

	var textBuf bytes.Buffer
	if err := tmpl.Execute(&textBuf, data); err != nil {
		return fmt.Errorf("failed to execute text template: %w", err)
	}
	if hasHTML {
		message.AddAlternativeString(mail.TypeTextPlain, textBuf.String())
	} else {
		message.SetBodyString(mail.TypeTextPlain, textBuf.String())
	}

	return nil
}
