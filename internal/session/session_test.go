package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/counselai/counsel/internal/fault"
)

func okBuilder(ctx context.Context, creds Credentials) (*Components, error) {
	return &Components{}, nil
}

func TestCreateAndGet(t *testing.T) {
	m := NewManager(okBuilder, nil)

	s, err := m.Create(context.Background(), Credentials{OpenAIKey: "sk-proj-abcdef123456"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.ID == "" {
		t.Error("session ID empty")
	}
	if s.Components == nil {
		t.Error("components not attached")
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != s {
		t.Error("Get returned a different session")
	}
}

func TestCreateFailsOnBadCredentials(t *testing.T) {
	m := NewManager(func(context.Context, Credentials) (*Components, error) {
		return nil, fault.New(fault.KindConfiguration, "llm.ping", "API returned status 401")
	}, nil)

	_, err := m.Create(context.Background(), Credentials{OpenAIKey: "sk-bad"})
	if !fault.Is(err, fault.KindConfiguration) {
		t.Errorf("kind = %v, want configuration", fault.KindOf(err))
	}
	if got := len(m.List()); got != 0 {
		t.Errorf("sessions = %d, want 0 after failed creation", got)
	}
}

func TestGetUnknownSession(t *testing.T) {
	m := NewManager(okBuilder, nil)
	_, err := m.Get("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCloseRemovesSession(t *testing.T) {
	m := NewManager(okBuilder, nil)
	s, err := m.Create(context.Background(), Credentials{OpenAIKey: "sk-key"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := m.Close(s.ID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := m.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound after close", err)
	}
	if err := m.Close(s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Close err = %v, want ErrNotFound", err)
	}
}

func TestRedactNeverExposesFullKey(t *testing.T) {
	key := "sk-proj-verysecretvalue"
	got := Redact(key)
	if strings.Contains(got, "verysecretvalue") {
		t.Errorf("redacted value %q leaks the key", got)
	}
	if !strings.HasPrefix(got, "sk-proj") {
		t.Errorf("redacted value %q lost its identifying prefix", got)
	}
	if Redact("") != "" {
		t.Error("empty secret should redact to empty")
	}
	if got := Redact("ab"); strings.Contains(got, "b") {
		t.Errorf("short secret leaked: %q", got)
	}
}

func TestKeyPrefixIsRedacted(t *testing.T) {
	m := NewManager(okBuilder, nil)
	s, err := m.Create(context.Background(), Credentials{OpenAIKey: "sk-proj-abcdef123456"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if strings.Contains(s.KeyPrefix, "abcdef123456") {
		t.Errorf("KeyPrefix %q leaks the key", s.KeyPrefix)
	}
}
