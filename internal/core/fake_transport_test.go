package core

import (
	"context"
	"fmt"
	"sync"

	"gwi.com/chatsync/internal/events"
	"gwi.com/chatsync/internal/store"
)

type sendResult struct {
	reply string
	err   error
}

type sendCall struct {
	message   string
	sessionID string
}

type uploadCall struct {
	filename    string
	contentType string
	data        []byte
}

// fakeTransport is an in-memory backend. Sends and fetches can be held open
// through gates so tests decide when each network completion happens.
type fakeTransport struct {
	mu       sync.Mutex
	sessions []store.Session
	messages map[string][]store.Message
	nextID   int

	listErr   error
	createErr error
	deleteErr error
	fetchErr  error
	sendErr   error
	uploadErr error

	listGate     chan struct{}
	listStarted  chan struct{}
	sendGate     chan sendResult
	sendStarted  chan sendCall
	fetchGates   map[string]chan struct{}
	fetchStarted chan string
	uploadGate   chan struct{}

	listCalls   int
	deleteCalls int
	fetchCalls  []string
	sendCalls   []sendCall
	uploadCalls []uploadCall
}

func newFakeTransport(sessions ...store.Session) *fakeTransport {
	return &fakeTransport{
		sessions:   sessions,
		messages:   map[string][]store.Message{},
		fetchGates: map[string]chan struct{}{},
	}
}

func (f *fakeTransport) withMessages(sessionID string, contents ...string) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range contents {
		role := store.RoleUser
		if i%2 == 1 {
			role = store.RoleAssistant
		}
		f.messages[sessionID] = append(f.messages[sessionID], store.Message{Role: role, Content: c})
	}
	return f
}

func (f *fakeTransport) holdSends() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendGate = make(chan sendResult)
	f.sendStarted = make(chan sendCall, 8)
}

// holdList makes the next listings wait on the returned gate. The listing
// reflects the sessions present when the request arrived.
func (f *fakeTransport) holdList() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listGate = make(chan struct{})
	f.listStarted = make(chan struct{}, 8)
	return f.listGate
}

func (f *fakeTransport) holdFetch(sessionID string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.fetchGates[sessionID] = gate
	if f.fetchStarted == nil {
		f.fetchStarted = make(chan string, 8)
	}
	return gate
}

func (f *fakeTransport) ListSessions(ctx context.Context) ([]store.Session, error) {
	f.mu.Lock()
	f.listCalls++
	listed := append([]store.Session{}, f.sessions...)
	listErr := f.listErr
	gate := f.listGate
	started := f.listStarted
	f.mu.Unlock()

	if gate != nil {
		started <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if listErr != nil {
		return nil, listErr
	}
	return listed, nil
}

func (f *fakeTransport) CreateSession(context.Context) (store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return store.Session{}, f.createErr
	}
	f.nextID++
	s := store.Session{ID: fmt.Sprintf("new-%d", f.nextID), Title: "New Chat"}
	f.sessions = append([]store.Session{s}, f.sessions...)
	return s, nil
}

func (f *fakeTransport) DeleteSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for i, s := range f.sessions {
		if s.ID == id {
			f.sessions = append(f.sessions[:i], f.sessions[i+1:]...)
			break
		}
	}
	delete(f.messages, id)
	return nil
}

func (f *fakeTransport) FetchMessages(ctx context.Context, id string) ([]store.Message, error) {
	f.mu.Lock()
	f.fetchCalls = append(f.fetchCalls, id)
	gate := f.fetchGates[id]
	started := f.fetchStarted
	f.mu.Unlock()

	if gate != nil {
		started <- id
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append([]store.Message{}, f.messages[id]...), nil
}

func (f *fakeTransport) SendChat(ctx context.Context, message, sessionID string) (string, error) {
	call := sendCall{message: message, sessionID: sessionID}
	f.mu.Lock()
	f.sendCalls = append(f.sendCalls, call)
	gate := f.sendGate
	started := f.sendStarted
	sendErr := f.sendErr
	f.mu.Unlock()

	if gate != nil {
		started <- call
		select {
		case res := <-gate:
			return res.reply, res.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if sendErr != nil {
		return "", sendErr
	}
	return "echo: " + message, nil
}

func (f *fakeTransport) UploadFile(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	f.mu.Lock()
	f.uploadCalls = append(f.uploadCalls, uploadCall{filename: filename, contentType: contentType, data: data})
	gate := f.uploadGate
	uploadErr := f.uploadErr
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if uploadErr != nil {
		return "", uploadErr
	}
	return fmt.Sprintf("File %s indexed successfully", filename), nil
}

func (f *fakeTransport) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sendCalls)
}

func (f *fakeTransport) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploadCalls)
}

// recorder keeps every published event in order.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
