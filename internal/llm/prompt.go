package llm

import "fmt"

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// ParseRole converts a stored role string into a Role. Matching is exact;
// "System" or "usr" are rejected rather than guessed.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q (want system, user or assistant)", s)
	}
	return r, nil
}

// Message is a single turn in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is the ordered message list sent to a completion service.
type Conversation []Message

// Append returns a new conversation with msgs added at the end. The receiver
// is left untouched so a conversation that was already sent stays as it was.
func (c Conversation) Append(msgs ...Message) Conversation {
	out := make(Conversation, 0, len(c)+len(msgs))
	out = append(out, c...)
	return append(out, msgs...)
}

// Insert returns a new conversation with msgs placed before position i.
func (c Conversation) Insert(i int, msgs ...Message) Conversation {
	if i < 0 {
		i = 0
	}
	if i > len(c) {
		i = len(c)
	}
	out := make(Conversation, 0, len(c)+len(msgs))
	out = append(out, c[:i]...)
	out = append(out, msgs...)
	return append(out, c[i:]...)
}

// Validate checks every message carries a known role.
func (c Conversation) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("conversation is empty")
	}
	for i, m := range c {
		if !m.Role.Valid() {
			return fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
	}
	return nil
}
