package smtp

import (
	"context"
	"errors"
	"net/smtp"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/phase-edms/internal/core/domain"
	"github.com/kirillkom/phase-edms/internal/infrastructure/resilience"
)

func TestSendErrorReportComposesMessage(t *testing.T) {
	m := New(Config{Addr: "mail.local:25", From: "edms@local", Recipients: []string{"dc@local", "pm@local"}}, nil, nil)
	var gotTo []string
	var gotMsg string
	m.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		if addr != "mail.local:25" || from != "edms@local" {
			t.Fatalf("unexpected envelope %s %s", addr, from)
		}
		gotTo = to
		gotMsg = string(msg)
		return nil
	}

	report := domain.NewImportReport()
	report.Global["wrong_pdf_count"] = "expected 2 pdf files, found 1"
	report.Lines[3] = domain.ValidationErrors{"missing_pdf": "FAC-001_01_IFR.pdf"}

	if err := m.SendErrorReport(context.Background(), "Error during transmittal import X", report); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(gotTo) != 2 {
		t.Fatalf("expected 2 recipients, got %v", gotTo)
	}
	for _, want := range []string{"Subject: Error during transmittal import X", "wrong_pdf_count", "Line 3:", "missing_pdf"} {
		if !strings.Contains(gotMsg, want) {
			t.Fatalf("message missing %q:\n%s", want, gotMsg)
		}
	}
}

func TestSendErrorReportWithoutRecipientsIsNoop(t *testing.T) {
	m := New(Config{Addr: "mail.local:25"}, nil, nil)
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatalf("send must not be called")
		return nil
	}
	if err := m.SendErrorReport(context.Background(), "s", domain.NewImportReport()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSendErrorReportRetriesTransientReply(t *testing.T) {
	policy := resilience.MailPolicy()
	policy.Retry.InitialBackoff = time.Millisecond
	policy.Retry.MaxBackoff = time.Millisecond
	m := New(Config{Addr: "mail.local:25", Recipients: []string{"dc@local"}}, resilience.NewExecutor(policy, nil), nil)
	calls := 0
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		calls++
		if calls == 1 {
			return &textproto.Error{Code: 451, Msg: "try again later"}
		}
		return nil
	}
	if err := m.SendErrorReport(context.Background(), "s", domain.NewImportReport()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestSendErrorReportPermanentReply(t *testing.T) {
	m := New(Config{Addr: "mail.local:25", Recipients: []string{"dc@local"}}, nil, nil)
	calls := 0
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		calls++
		return &textproto.Error{Code: 550, Msg: "mailbox unavailable"}
	}
	err := m.SendErrorReport(context.Background(), "s", domain.NewImportReport())
	var tpErr *textproto.Error
	if !errors.As(err, &tpErr) || tpErr.Code != 550 {
		t.Fatalf("expected smtp reply error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}
