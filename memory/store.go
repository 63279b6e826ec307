// Package memory keeps per-user conversation history in process memory.
//
// Each user has a bounded, time-ordered list of plain-text messages. Only the
// user's messages and the agent's final replies are stored; intermediate tool
// traffic never reaches the store. Nothing survives a restart.
package memory

import (
	"sort"
	"sync"
	"time"
)

// DefaultMaxMessages is the per-user retention bound.
const DefaultMaxMessages = 50

// Role identifies the author of a stored message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one stored conversation entry.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ModelMessage is a Message without its timestamp, as sent to the model.
type ModelMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Stats summarises the store.
type Stats struct {
	TotalUsers    int      `json:"total_users"`
	TotalMessages int      `json:"total_messages"`
	Users         []string `json:"users"`
}

type userEntry struct {
	mu       sync.Mutex
	messages []Message
	metadata map[string]any
	// hasConversation is false for users that only ever had metadata set.
	hasConversation bool
}

// Store holds conversations keyed by user identifier. It is safe for
// concurrent use; each user entry carries its own lock.
type Store struct {
	maxMessages int
	users       map[string]*userEntry
	mu          sync.RWMutex
	now         func() time.Time
}

// NewStore creates a Store keeping at most maxMessages per user. A
// non-positive bound selects DefaultMaxMessages.
func NewStore(maxMessages int) *Store {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &Store{
		maxMessages: maxMessages,
		users:       make(map[string]*userEntry),
		now:         time.Now,
	}
}

// MaxMessages returns the retention bound.
func (s *Store) MaxMessages() int {
	return s.maxMessages
}

func (s *Store) entry(userID string, create bool) *userEntry {
	s.mu.RLock()
	e, ok := s.users[userID]
	s.mu.RUnlock()
	if ok || !create {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.users[userID]; ok {
		return e
	}
	e = &userEntry{metadata: make(map[string]any)}
	s.users[userID] = e
	return e
}

// Append records a message for userID, creating the conversation if needed
// and evicting the oldest messages beyond the retention bound.
func (s *Store) Append(userID string, role Role, content string) {
	e := s.entry(userID, true)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.hasConversation = true
	e.messages = append(e.messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
	})
	if excess := len(e.messages) - s.maxMessages; excess > 0 {
		trimmed := make([]Message, s.maxMessages)
		copy(trimmed, e.messages[excess:])
		e.messages = trimmed
	}
}

// Messages returns a copy of the last lastN messages for userID in
// chronological order. lastN <= 0 returns all of them. Unknown users have
// no messages.
func (s *Store) Messages(userID string, lastN int) []Message {
	e := s.entry(userID, false)
	if e == nil {
		return []Message{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	start := 0
	if lastN > 0 && lastN < len(e.messages) {
		start = len(e.messages) - lastN
	}
	out := make([]Message, len(e.messages)-start)
	copy(out, e.messages[start:])
	return out
}

// ModelView returns the last lastN messages stripped to role and content.
func (s *Store) ModelView(userID string, lastN int) []ModelMessage {
	msgs := s.Messages(userID, lastN)
	out := make([]ModelMessage, len(msgs))
	for i, m := range msgs {
		out[i] = ModelMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

// Clear empties the conversation for userID. The user stays known and keeps
// its metadata.
func (s *Store) Clear(userID string) {
	e := s.entry(userID, false)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = nil
}

// SetMetadata stores a per-user value.
func (s *Store) SetMetadata(userID, key string, value any) {
	e := s.entry(userID, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metadata[key] = value
}

// Metadata returns a per-user value, or def when it was never set.
func (s *Store) Metadata(userID, key string, def any) any {
	e := s.entry(userID, false)
	if e == nil {
		return def
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if v, ok := e.metadata[key]; ok {
		return v
	}
	return def
}

// Stats reports the number of users with a conversation, their total stored
// messages and their identifiers in sorted order.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	entries := make(map[string]*userEntry, len(s.users))
	for id, e := range s.users {
		entries[id] = e
	}
	s.mu.RUnlock()

	stats := Stats{Users: []string{}}
	for id, e := range entries {
		e.mu.Lock()
		if e.hasConversation {
			stats.TotalUsers++
			stats.TotalMessages += len(e.messages)
			stats.Users = append(stats.Users, id)
		}
		e.mu.Unlock()
	}
	sort.Strings(stats.Users)
	return stats
}
