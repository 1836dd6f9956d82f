package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestStatusProvider_TracksLastCall(t *testing.T) {
	inner := &mockRetryProvider{
		name:      "inner",
		errors:    []error{&CompletionServiceError{Provider: "inner", StatusCode: 503, Reason: "overloaded"}},
		responses: []*Response{{Content: "ok"}},
	}
	s := WithStatus(inner)

	if err := s.Check(context.Background()); err != nil {
		t.Fatalf("expected healthy before any call, got %v", err)
	}

	if _, err := s.Complete(context.Background(), userTurn("hi"), nil); err == nil {
		t.Fatal("expected first call to fail")
	}
	err := s.Check(context.Background())
	var ce *CompletionServiceError
	if !errors.As(err, &ce) || ce.StatusCode != 503 {
		t.Fatalf("expected last failure reported, got %v", err)
	}
	if !strings.Contains(err.Error(), "last call at") {
		t.Errorf("expected timestamped message, got %q", err.Error())
	}

	if _, err := s.Complete(context.Background(), userTurn("hi"), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Check(context.Background()); err != nil {
		t.Fatalf("expected recovery after success, got %v", err)
	}
	if s.Name() != "inner" {
		t.Errorf("expected inner name, got %s", s.Name())
	}
}

func TestStatusProvider_IgnoresCallerCancellation(t *testing.T) {
	inner := &mockRetryProvider{name: "inner", embedErrors: []error{context.Canceled}}
	s := WithStatus(inner)

	if _, err := s.Embed(context.Background(), []string{"x"}, "m"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := s.Check(context.Background()); err != nil {
		t.Fatalf("cancellation must not mark the provider unhealthy, got %v", err)
	}
}

func TestWithStatus_Nil(t *testing.T) {
	if WithStatus(nil) != nil {
		t.Fatal("expected nil for nil provider")
	}
}
