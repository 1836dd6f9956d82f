package llm

import (
	"math"
	"testing"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"system", RoleSystem, false},
		{"user", RoleUser, false},
		{"assistant", RoleAssistant, false},
		{"System", "", true},
		{"usr", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRole(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRole(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConversation_AppendLeavesReceiver(t *testing.T) {
	base := Conversation{{Role: RoleSystem, Content: "sys"}}
	next := base.Append(Message{Role: RoleUser, Content: "hi"})

	if len(base) != 1 {
		t.Fatalf("receiver changed: %v", base)
	}
	if len(next) != 2 || next[1].Content != "hi" {
		t.Fatalf("unexpected appended conversation: %v", next)
	}
}

func TestConversation_Insert(t *testing.T) {
	conv := Conversation{
		{Role: RoleSystem, Content: "a"},
		{Role: RoleUser, Content: "c"},
	}
	got := conv.Insert(1, Message{Role: RoleSystem, Content: "b"})

	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].Content != w {
			t.Errorf("position %d: expected %q, got %q", i, w, got[i].Content)
		}
	}
	if conv[1].Content != "c" {
		t.Fatal("receiver changed")
	}

	clamped := conv.Insert(99, Message{Role: RoleUser, Content: "z"})
	if clamped[len(clamped)-1].Content != "z" {
		t.Fatalf("expected out of range insert to append, got %v", clamped)
	}
}

func TestConversation_Validate(t *testing.T) {
	if err := (Conversation{}).Validate(); err == nil {
		t.Fatal("expected error for empty conversation")
	}
	if err := (Conversation{{Role: "robot", Content: "x"}}).Validate(); err == nil {
		t.Fatal("expected error for unknown role")
	}
	if err := userTurn("ok").Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequestOptions_Validate(t *testing.T) {
	neg := -1
	tests := []struct {
		name    string
		opts    *RequestOptions
		wantErr bool
	}{
		{"nil", nil, true},
		{"no model", &RequestOptions{}, true},
		{"zero temperature", &RequestOptions{Model: "m"}, false},
		{"max temperature", &RequestOptions{Model: "m", Temperature: 2}, false},
		{"too hot", &RequestOptions{Model: "m", Temperature: 2.1}, true},
		{"negative temperature", &RequestOptions{Model: "m", Temperature: -0.1}, true},
		{"NaN temperature", &RequestOptions{Model: "m", Temperature: math.NaN()}, true},
		{"bad max tokens", &RequestOptions{Model: "m", MaxTokens: &neg}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStatusCode(t *testing.T) {
	wrapped := &EmbeddingServiceError{Provider: "p", StatusCode: 429}
	if got := StatusCode(wrapped); got != 429 {
		t.Fatalf("expected 429, got %d", got)
	}
	if got := StatusCode(&CompletionServiceError{Reason: "dial"}); got != 0 {
		t.Fatalf("expected 0 for transport failure, got %d", got)
	}
}
