package core

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"gwi.com/chatsync/internal/api"
	"gwi.com/chatsync/internal/events"
	"gwi.com/chatsync/internal/store"
)

// Transport is the backend surface the services depend on. *api.Client
// satisfies it.
type Transport interface {
	ListSessions(ctx context.Context) ([]store.Session, error)
	CreateSession(ctx context.Context) (store.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	FetchMessages(ctx context.Context, sessionID string) ([]store.Message, error)
	SendChat(ctx context.Context, message, sessionID string) (string, error)
	UploadFile(ctx context.Context, filename, contentType string, data []byte) (string, error)
}

var _ Transport = (*api.Client)(nil)

// Snapshot is a read-only copy of the service state. Each field is consistent
// on its own; the fields are read one after another.
type Snapshot struct {
	Sessions         []store.Session `json:"sessions" yaml:"sessions"`
	CurrentSessionID string          `json:"current_session_id" yaml:"current_session_id"`
	Messages         []store.Message `json:"messages" yaml:"messages"`
	Loading          bool            `json:"loading" yaml:"loading"`
	Sending          bool            `json:"sending" yaml:"sending"`
}

// ChatService keeps the session list and the active conversation in step with
// the backend. Network calls block the caller; callers that must stay
// responsive run them on their own goroutine.
type ChatService struct {
	transport    Transport
	sessions     *store.SessionStore
	conversation *store.ConversationStore
	events       events.Publisher

	// held while a selection change and the matching conversation reset are
	// applied, so the conversation always follows the selection
	selMu sync.Mutex
}

func NewChatService(transport Transport, sessions *store.SessionStore, conversation *store.ConversationStore, publisher events.Publisher) *ChatService {
	if sessions == nil {
		sessions = store.NewSessionStore()
	}
	if conversation == nil {
		conversation = store.NewConversationStore()
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &ChatService{
		transport:    transport,
		sessions:     sessions,
		conversation: conversation,
		events:       publisher,
	}
}

// Initialize fetches the session list and, when nothing is selected yet,
// selects the newest session and loads its messages.
func (s *ChatService) Initialize(ctx context.Context) error {
	if err := s.Refresh(ctx); err != nil {
		return err
	}
	if s.sessions.Current() != "" {
		return nil
	}
	list := s.sessions.Sessions()
	if len(list) == 0 {
		return nil
	}
	return s.SelectSession(ctx, list[0].ID)
}

// Refresh re-lists the sessions. The selection is kept while the server still
// lists it; otherwise it is cleared along with the conversation. Sessions
// created or deleted while the listing was in flight stay as they are.
func (s *ChatService) Refresh(ctx context.Context) error {
	version := s.sessions.Version()
	list, err := s.transport.ListSessions(ctx)
	if err != nil {
		log.Error().Err(err).Str("op", "list sessions").Msg("Failed to list sessions")
		return errors.WithMessage(err, "list sessions")
	}

	s.selMu.Lock()
	cleared := s.sessions.ReplaceSince(list, version)
	var epoch uint64
	if cleared {
		epoch = s.conversation.Reset("")
	}
	s.selMu.Unlock()

	s.publishSessions()
	if cleared {
		return s.onSelectionChanged(ctx, "", epoch)
	}
	return nil
}

// SelectSession makes id the active session and loads its messages. Selecting
// the active session again does nothing; an empty id clears the selection.
func (s *ChatService) SelectSession(ctx context.Context, id string) error {
	s.selMu.Lock()
	changed, err := s.sessions.Select(id)
	var epoch uint64
	if err == nil && changed {
		epoch = s.conversation.Reset(id)
	}
	s.selMu.Unlock()

	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	s.publishSessions()
	return s.onSelectionChanged(ctx, id, epoch)
}

// onSelectionChanged loads the conversation for id into the epoch opened by
// the selection change. Messages fetched for a selection that has since moved
// on are discarded.
func (s *ChatService) onSelectionChanged(ctx context.Context, id string, epoch uint64) error {
	if id == "" {
		if s.conversation.Load(epoch, nil) {
			s.events.Publish(events.Event{Type: events.TypeConversationLoaded})
		}
		return nil
	}
	s.events.Publish(events.Event{Type: events.TypeConversationLoaded, SessionID: id, Loading: true})

	msgs, err := s.transport.FetchMessages(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("session_id", id).Msg("Failed to fetch messages")
		return errors.WithMessagef(err, "fetch messages for session %s", id)
	}
	if !s.conversation.Load(epoch, msgs) {
		log.Debug().Str("session_id", id).Msg("Dropping messages for abandoned selection")
		return nil
	}
	s.events.Publish(events.Event{
		Type:      events.TypeConversationLoaded,
		SessionID: id,
		Messages:  s.conversation.Messages(),
	})
	return nil
}

// CreateSession asks the backend for a new session, puts it at the head of the
// list and selects it.
func (s *ChatService) CreateSession(ctx context.Context) (store.Session, error) {
	session, err := s.transport.CreateSession(ctx)
	if err != nil {
		log.Error().Err(err).Str("op", "create session").Msg("Failed to create session")
		return store.Session{}, errors.WithMessage(err, "create session")
	}
	log.Debug().Str("session_id", session.ID).Msg("Created session")

	s.sessions.Prepend(session)
	s.publishSessions()
	return session, s.SelectSession(ctx, session.ID)
}

// DeleteSession deletes id on the backend and then locally. Deleting the
// active session activates the new head of the list, or nothing.
func (s *ChatService) DeleteSession(ctx context.Context, id string) error {
	if _, ok := s.sessions.Get(id); !ok {
		return store.ErrUnknownSession
	}
	if err := s.transport.DeleteSession(ctx, id); err != nil {
		log.Error().Err(err).Str("session_id", id).Msg("Failed to delete session")
		return errors.WithMessagef(err, "delete session %s", id)
	}

	s.selMu.Lock()
	next, changed := s.sessions.Remove(id)
	var epoch uint64
	if changed {
		epoch = s.conversation.Reset(next)
	}
	s.selMu.Unlock()

	s.publishSessions()
	if changed {
		return s.onSelectionChanged(ctx, next, epoch)
	}
	return nil
}

// SendMessage appends text to the active conversation and waits for the
// reply. Only local rejections are returned as errors: a failed request is
// shown as an error notice in the conversation instead. A reply that arrives
// after the user moved to another conversation is dropped.
func (s *ChatService) SendMessage(ctx context.Context, text string) error {
	p, err := s.conversation.AppendUser(text)
	if err != nil {
		return err
	}
	s.events.Publish(events.Event{
		Type:      events.TypeMessageAppended,
		SessionID: p.SessionID,
		Message:   &store.Message{Role: store.RoleUser, Content: p.Content, Kind: store.KindReply},
	})
	s.publishSendState()

	reply, err := s.transport.SendChat(ctx, p.Content, p.SessionID)

	var m store.Message
	var applied bool
	if err != nil {
		log.Warn().Err(err).
			Str("session_id", p.SessionID).
			Str("request_id", p.RequestID).
			Msg("Chat request failed")
		m, applied = s.conversation.Reject(p, api.ErrorMessage(err))
	} else {
		m, applied = s.conversation.Resolve(p, reply)
	}

	if applied {
		s.events.Publish(events.Event{Type: events.TypeMessageAppended, SessionID: p.SessionID, Message: &m})
	} else {
		log.Debug().
			Str("session_id", p.SessionID).
			Str("request_id", p.RequestID).
			Msg("Dropping reply for abandoned conversation")
	}
	s.publishSendState()
	return nil
}

func (s *ChatService) Snapshot() Snapshot {
	return Snapshot{
		Sessions:         s.sessions.Sessions(),
		CurrentSessionID: s.sessions.Current(),
		Messages:         s.conversation.Messages(),
		Loading:          s.conversation.Loading(),
		Sending:          s.conversation.Sending(),
	}
}

func (s *ChatService) publishSessions() {
	s.events.Publish(events.Event{
		Type:      events.TypeSessionsUpdated,
		SessionID: s.sessions.Current(),
		Sessions:  s.sessions.Sessions(),
	})
}

func (s *ChatService) publishSendState() {
	s.events.Publish(events.Event{Type: events.TypeSendState, Sending: s.conversation.Sending()})
}

type nopPublisher struct{}

func (nopPublisher) Publish(events.Event) {}
