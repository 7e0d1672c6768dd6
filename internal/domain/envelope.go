package domain

import (
	"maps"
	"time"
)

// ContentType is the closed set of payload shapes an Envelope may carry.
type ContentType string

const (
	ContentRawText      ContentType = "raw_text"
	ContentObject       ContentType = "object"
	ContentConversation ContentType = "conversation_state"
	ContentError        ContentType = "error"
)

// IsValid reports whether ct is a member of the closed ContentType set.
func (ct ContentType) IsValid() bool {
	switch ct {
	case ContentRawText, ContentObject, ContentConversation, ContentError:
		return true
	default:
		return false
	}
}

func (ct ContentType) String() string { return string(ct) }

// Envelope is the immutable, typed unit of data that flows along edges
// between nodes. A node handler produces exactly one Envelope per output
// handle per execution; edges consume it, optionally transform it, and
// deliver it to a target node's named input.
type Envelope struct {
	ID      string
	TraceID ExecutionID

	// ProducedBy names the node whose handler built this envelope.
	ProducedBy NodeID

	ContentType ContentType

	// Body holds the payload: a string for RawText, a map[string]any (or
	// slice) for Object, a ConversationSnapshot for ConversationState, or
	// an error description for Error.
	Body any

	// Meta carries free-form metadata the producing handler attached
	// (e.g. token usage, source handle name).
	Meta map[string]any

	// Representations caches alternate renderings of Body computed by
	// transform rules (e.g. the text rendering of an Object body), keyed
	// by the representation name ("text", "object").
	Representations map[string]any

	CreatedAt time.Time
}

// NewTextEnvelope builds a RawText envelope.
func NewTextEnvelope(producedBy NodeID, trace ExecutionID, text string) Envelope {
	return Envelope{
		ProducedBy:  producedBy,
		TraceID:     trace,
		ContentType: ContentRawText,
		Body:        text,
	}
}

// NewObjectEnvelope builds an Object envelope.
func NewObjectEnvelope(producedBy NodeID, trace ExecutionID, body any) Envelope {
	return Envelope{
		ProducedBy:  producedBy,
		TraceID:     trace,
		ContentType: ContentObject,
		Body:        body,
	}
}

// ConversationSnapshot is the Body of a ConversationState envelope: a
// point-in-time copy of the messages a PersonJob node's output exposes to
// a downstream consumer that also expects conversation-shaped input.
type ConversationSnapshot struct {
	Person   PersonID
	Messages []Message
}

// NewConversationEnvelope builds a ConversationState envelope.
func NewConversationEnvelope(producedBy NodeID, trace ExecutionID, snapshot ConversationSnapshot) Envelope {
	return Envelope{
		ProducedBy:  producedBy,
		TraceID:     trace,
		ContentType: ContentConversation,
		Body:        snapshot,
	}
}

// NewErrorEnvelope builds an Error envelope carrying a handler failure.
func NewErrorEnvelope(producedBy NodeID, trace ExecutionID, err error) Envelope {
	return Envelope{
		ProducedBy:  producedBy,
		TraceID:     trace,
		ContentType: ContentError,
		Body:        err.Error(),
	}
}

// Clone returns a copy of e whose Meta and Representations maps are
// independent of e's, so a holder of the original is unaffected by
// mutations a transform rule makes to the clone (or vice versa).
func (e Envelope) Clone() Envelope {
	e.Meta = maps.Clone(e.Meta)
	e.Representations = maps.Clone(e.Representations)
	return e
}

// AsText returns the envelope's best-effort text representation: the Body
// itself if it is already a string, the cached "text" representation if
// present, or ok=false otherwise.
func (e Envelope) AsText() (string, bool) {
	if s, ok := e.Body.(string); ok {
		return s, true
	}
	if e.Representations != nil {
		if s, ok := e.Representations["text"].(string); ok {
			return s, true
		}
	}
	return "", false
}
