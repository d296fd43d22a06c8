package store

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// PendingSend tags an outstanding chat request with the conversation it was
// issued from. A reply is only applied while that conversation is still shown.
type PendingSend struct {
	RequestID string
	SessionID string
	Epoch     uint64
	Content   string
}

// ConversationStore owns the message log of the active session and the send
// gate. Every Reset starts a new epoch; results tagged with an older epoch are
// stale and are not applied.
type ConversationStore struct {
	mu        sync.RWMutex
	sessionID string
	epoch     uint64
	messages  []Message
	pending   *PendingSend

	// set from Reset until the epoch's first Load; messages appended in
	// between are kept after the loaded history
	loading bool
}

func NewConversationStore() *ConversationStore {
	return &ConversationStore{}
}

// Reset binds the conversation to sessionID with an empty log and returns the
// new epoch. The send gate is left untouched: an outstanding request keeps it
// closed until it resolves.
func (c *ConversationStore) Reset(sessionID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = sessionID
	c.messages = nil
	c.loading = sessionID != ""
	c.epoch++
	return c.epoch
}

func (c *ConversationStore) Epoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// Load installs the server's sequence, provided epoch is still current. It
// reports whether the messages were applied. Messages appended since the Reset
// that opened epoch stay in the log, after the loaded ones; a later Load in
// the same epoch replaces the log wholesale.
func (c *ConversationStore) Load(epoch uint64, messages []Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		return false
	}
	if c.sessionID == "" {
		c.messages = nil
		return true
	}
	loaded := make([]Message, 0, len(messages)+len(c.messages))
	for _, m := range messages {
		if m.Kind == "" {
			m.Kind = KindReply
		}
		loaded = append(loaded, m)
	}
	if c.loading {
		loaded = append(loaded, c.messages...)
		c.loading = false
	}
	c.messages = loaded
	return true
}

// Loading reports whether the current session's history has not been loaded
// yet.
func (c *ConversationStore) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// AppendUser optimistically appends a user message and closes the send gate.
// Content is trimmed; empty content, a pending send or a missing session are
// rejected without touching the log.
func (c *ConversationStore) AppendUser(content string) (PendingSend, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return PendingSend{}, ErrEmptyMessage
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		return PendingSend{}, ErrSendInProgress
	}
	if c.sessionID == "" {
		return PendingSend{}, ErrNoActiveSession
	}

	c.messages = append(c.messages, Message{Role: RoleUser, Content: content, Kind: KindReply})
	p := PendingSend{
		RequestID: uuid.NewString(),
		SessionID: c.sessionID,
		Epoch:     c.epoch,
		Content:   content,
	}
	c.pending = &p
	return p, nil
}

func (c *ConversationStore) AppendAssistant(content string) Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendLocked(assistantReply(content))
}

func (c *ConversationStore) AppendAssistantError(message string) Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendLocked(errorNotice(message))
}

// Resolve settles p with the assistant's reply. The gate reopens if p is the
// outstanding request; the reply is appended only if p's conversation is still
// the one shown.
func (c *ConversationStore) Resolve(p PendingSend, reply string) (Message, bool) {
	return c.settle(p, assistantReply(reply))
}

// Reject settles p with an error notice, under the same rules as Resolve.
func (c *ConversationStore) Reject(p PendingSend, message string) (Message, bool) {
	return c.settle(p, errorNotice(message))
}

func (c *ConversationStore) settle(p PendingSend, m Message) (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil && c.pending.RequestID == p.RequestID {
		c.pending = nil
	}
	if p.Epoch != c.epoch || p.SessionID != c.sessionID {
		return Message{}, false
	}
	return c.appendLocked(m), true
}

func (c *ConversationStore) appendLocked(m Message) Message {
	c.messages = append(c.messages, m)
	return m
}

// Messages returns a copy of the log in display order.
func (c *ConversationStore) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Message(nil), c.messages...)
}

func (c *ConversationStore) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Sending reports whether a send is outstanding.
func (c *ConversationStore) Sending() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pending != nil
}

func assistantReply(content string) Message {
	return Message{Role: RoleAssistant, Content: content, Kind: KindReply}
}

func errorNotice(message string) Message {
	return Message{Role: RoleAssistant, Content: ErrorNoticePrefix + message, Kind: KindError}
}
