// Package conversation owns the execution-scoped global message log and
// derives per-person views of it: the default chronological view, the
// GOLDFISH empty view, and LLM-assisted memory selection with
// deduplication and composite scoring.
package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dipeo/dipeo/internal/domain"
)

// Conversation is the append-only message log for one execution.
type Conversation struct {
	mu       sync.RWMutex
	messages []domain.Message
}

// New returns an empty Conversation.
func New() *Conversation {
	return &Conversation{}
}

// Append records a message and returns it with its id and timestamp
// populated if they were unset.
func (c *Conversation) Append(msg domain.Message) domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	if msg.ID == "" {
		msg.ID = domain.MessageID(uuid.New().String()[:6])
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	c.messages = append(c.messages, msg)
	return msg
}

// All returns every message in append order. Callers must not mutate the
// returned slice.
func (c *Conversation) All() []domain.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// ViewFor returns every message in which person participated, either as
// sender or recipient, in append order. This is the default memory view a
// PersonJob node sees absent an explicit memorize_to criterion.
func (c *Conversation) ViewFor(person domain.PersonID) []domain.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []domain.Message
	for _, m := range c.messages {
		if m.From == person || m.To == person {
			out = append(out, m)
		}
	}
	return out
}

// ClearInvolving removes every message referencing person, used by
// GOLDFISH memory mode after a node completes.
func (c *Conversation) ClearInvolving(person domain.PersonID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.messages[:0:0]
	for _, m := range c.messages {
		if m.From != person && m.To != person {
			kept = append(kept, m)
		}
	}
	c.messages = kept
}
