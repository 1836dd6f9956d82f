package template

import (
	"fmt"
	"sort"
	"sync"
)

// MemoryStore holds records built in code.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]Template
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]Template)}
}

// Put stores fragments under ref, replacing any previous record.
func (s *MemoryStore) Put(ref string, fragments ...Template) {
	cp := append([]Template(nil), fragments...)
	s.mu.Lock()
	s.records[ref] = cp
	s.mu.Unlock()
}

func (s *MemoryStore) Load(ref string) (Template, error) {
	ts, err := s.LoadAll(ref)
	if err != nil {
		return Template{}, err
	}
	return single(ref, ts)
}

func (s *MemoryStore) LoadAll(ref string) ([]Template, error) {
	s.mu.RLock()
	ts, ok := s.records[ref]
	s.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{Ref: ref}
	}
	if len(ts) == 0 {
		return nil, &MalformedTemplateError{Ref: ref, Reason: "record holds no fragments"}
	}
	for i, t := range ts {
		if !t.Role.Valid() {
			return nil, &MalformedTemplateError{Ref: ref, Reason: fmt.Sprintf("fragment %d: unknown role %q", i, t.Role)}
		}
	}
	return append([]Template(nil), ts...), nil
}

// Refs lists stored references in sorted order.
func (s *MemoryStore) Refs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.records))
	for ref := range s.records {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}

// Chain tries each store in order. A NotFoundError moves on to the next
// store; any other error stops the search.
type Chain []Store

var _ Store = Chain(nil)

func (c Chain) Load(ref string) (Template, error) {
	ts, err := c.LoadAll(ref)
	if err != nil {
		return Template{}, err
	}
	return single(ref, ts)
}

func (c Chain) LoadAll(ref string) ([]Template, error) {
	for _, s := range c {
		if s == nil {
			continue
		}
		ts, err := s.LoadAll(ref)
		if err == nil {
			return ts, nil
		}
		if !IsNotFound(err) {
			return nil, err
		}
	}
	return nil, &NotFoundError{Ref: ref}
}
