package smtp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
	"net/textproto"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/phase-edms/internal/core/domain"
	"github.com/kirillkom/phase-edms/internal/infrastructure/resilience"
)

type Config struct {
	Addr       string
	Username   string
	Password   string
	From       string
	Recipients []string
	// PerMinute caps outgoing messages. Zero disables the limit.
	PerMinute int
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer delivers import error reports over SMTP.
type Mailer struct {
	cfg      Config
	executor *resilience.Executor
	limiter  *rate.Limiter
	logger   *slog.Logger
	send     sendFunc
	now      func() time.Time
}

func New(cfg Config, executor *resilience.Executor, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.MailPolicy(), logger)
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.PerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.PerMinute)), 1)
	}
	return &Mailer{
		cfg:      cfg,
		executor: executor,
		limiter:  limiter,
		logger:   logger,
		send:     smtp.SendMail,
		now:      time.Now,
	}
}

func (m *Mailer) SendErrorReport(ctx context.Context, subject string, report domain.ImportReport) error {
	if len(m.cfg.Recipients) == 0 {
		m.logger.Warn("mail_skipped_no_recipients", "subject", subject)
		return nil
	}
	msg := m.compose(subject, RenderReport(report))

	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		host := m.cfg.Addr
		if i := strings.LastIndex(host, ":"); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, host)
	}

	err := m.executor.Execute(ctx, resilience.OpSMTPSend, func(context.Context) error {
		return m.send(m.cfg.Addr, auth, m.cfg.From, m.cfg.Recipients, msg)
	}, classifySMTP)
	if err != nil {
		return fmt.Errorf("send error report: %w", err)
	}
	m.logger.Info("mail_sent", "subject", subject, "recipients", len(m.cfg.Recipients))
	return nil
}

func (m *Mailer) compose(subject, body string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(m.cfg.Recipients, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", m.now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	buf.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return buf.Bytes()
}

// 4xx replies are transient per RFC 5321.
func classifySMTP(err error) resilience.ErrorClassification {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		if tpErr.Code >= 400 && tpErr.Code < 500 {
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		}
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	return resilience.ClassifyTransport(err)
}

// RenderReport formats an import report as plain text.
func RenderReport(report domain.ImportReport) string {
	var b strings.Builder
	if len(report.Global) > 0 {
		b.WriteString("Global errors:\n")
		writeErrors(&b, report.Global)
	}
	for _, n := range report.LineNumbers() {
		fmt.Fprintf(&b, "Line %d:\n", n)
		writeErrors(&b, report.Lines[n])
	}
	if len(report.Revisions) > 0 {
		b.WriteString("Revision errors:\n")
		writeErrors(&b, report.Revisions)
	}
	return b.String()
}

func writeErrors(b *strings.Builder, errs map[string]string) {
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "  - %s: %s\n", k, errs[k])
	}
}
