package auth

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// SMTPConfig holds mail relay settings for the SMTP notifier.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPNotifier delivers passcodes over SMTP.
type SMTPNotifier struct {
	cfg    SMTPConfig
	logger Logger
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

var _ Notifier = (*SMTPNotifier)(nil)

type SMTPNotifierOption func(*SMTPNotifier)

func WithSMTPLogger(logger Logger) SMTPNotifierOption {
	return func(n *SMTPNotifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithSMTPSendFunc overrides the transport (useful for tests).
func WithSMTPSendFunc(send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error) SMTPNotifierOption {
	return func(n *SMTPNotifier) {
		if send != nil {
			n.send = send
		}
	}
}

func NewSMTPNotifier(cfg SMTPConfig, opts ...SMTPNotifierOption) *SMTPNotifier {
	n := &SMTPNotifier{
		cfg:    cfg,
		logger: defLogger{},
		send:   smtp.SendMail,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n
}

// Send delivers the verification code. The code itself is never logged.
func (n *SMTPNotifier) Send(ctx context.Context, destination, code, displayName string) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during passcode delivery")
	default:
	}

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	msg := buildPasscodeMessage(n.cfg.From, destination, code, displayName)

	if err := n.send(addr, auth, n.cfg.From, []string{destination}, msg); err != nil {
		n.logger.Error("passcode delivery failed, destination=%s error=%v", destination, err)
		return goerrors.Wrap(err, ErrPasscodeDelivery.Category, ErrPasscodeDelivery.Message).
			WithTextCode(ErrPasscodeDelivery.TextCode)
	}

	n.logger.Info("passcode delivered, destination=%s", destination)
	return nil
}

func buildPasscodeMessage(from, to, code, displayName string) []byte {
	greeting := "Hello"
	if displayName != "" {
		greeting = "Hello " + displayName
	}

	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: Your Verification Code\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(greeting + ",\r\n\r\n")
	b.WriteString("Your verification code is: " + code + "\r\n\r\n")
	b.WriteString(fmt.Sprintf("The code expires in %d minutes.\r\n", int(PasscodeTTL.Minutes())))
	return []byte(b.String())
}

// LogNotifier writes codes to the log instead of sending them. Development
// only; it defeats the point of out-of-band delivery.
type LogNotifier struct {
	logger Logger
}

var _ Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger Logger) *LogNotifier {
	if logger == nil {
		logger = defLogger{}
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, destination, code, displayName string) error {
	n.logger.Info("passcode for %s (%s): %s", destination, displayName, code)
	return nil
}
