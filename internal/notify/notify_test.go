package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type notifierFunc func(ctx context.Context, r Report) error

func (f notifierFunc) Notify(ctx context.Context, r Report) error {
	return f(ctx, r)
}

func TestMulti(t *testing.T) {
	var calls []string
	record := func(name string, err error) Notifier {
		return notifierFunc(func(ctx context.Context, r Report) error {
			calls = append(calls, name)
			return err
		})
	}

	m := Multi{record("a", errors.New("smtp down")), record("b", nil), record("c", errors.New("imap down"))}
	err := m.Notify(context.Background(), Report{})

	if got := strings.Join(calls, ","); got != "a,b,c" {
		t.Errorf("calls = %s, want a,b,c", got)
	}
	if err == nil || !strings.Contains(err.Error(), "smtp down") || !strings.Contains(err.Error(), "imap down") {
		t.Errorf("Notify() error = %v, want both failures", err)
	}

	if err := (Multi{}).Notify(context.Background(), Report{}); err != nil {
		t.Errorf("empty Multi.Notify() error = %v", err)
	}
}

func TestReportSubject(t *testing.T) {
	if got := (Report{}).subject(); got != DefaultSubject {
		t.Errorf("subject() = %q, want default", got)
	}
	if got := (Report{Subject: "Nightly"}).subject(); got != "Nightly" {
		t.Errorf("subject() = %q, want Nightly", got)
	}
}
