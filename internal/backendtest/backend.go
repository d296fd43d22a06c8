// Package backendtest runs an in-process chat backend that speaks the same
// HTTP contract as the real server. Tests point an api.Client at it.
package backendtest

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type Option func(*options)

type options struct {
	responder Responder
	indexer   Indexer
}

// WithResponder replaces the default echo reply.
func WithResponder(r Responder) Option {
	return func(o *options) {
		o.responder = r
	}
}

// WithIndexer sets the hook called for every accepted upload.
func WithIndexer(i Indexer) Option {
	return func(o *options) {
		o.indexer = i
	}
}

type Backend struct {
	URL   string
	Store *SQLiteStore

	handler *Handler
	server  *httptest.Server
}

// New starts a backend and registers its shutdown with t.Cleanup.
func New(t testing.TB, opts ...Option) *Backend {
	t.Helper()

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	st, err := NewSQLiteStore()
	require.NoError(t, err)

	h := NewHandler(st, o.responder, o.indexer)
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(func() {
		srv.Close()
		_ = st.Close()
	})

	return &Backend{URL: srv.URL, Store: st, handler: h, server: srv}
}

// SeedSession creates a session holding the given user/assistant exchanges.
func (b *Backend) SeedSession(t testing.TB, title string, exchanges ...[2]string) SessionRecord {
	t.Helper()
	s, err := b.Store.CreateSession(title)
	require.NoError(t, err)
	for _, ex := range exchanges {
		require.NoError(t, b.Store.AppendExchange(s.ID, ex[0], ex[1]))
	}
	return *s
}

func (b *Backend) ChatRequests() int64 {
	return b.handler.chatRequests.Load()
}

func (b *Backend) UploadRequests() int64 {
	return b.handler.uploadRequests.Load()
}

// Close stops the server early, so later requests fail at the transport level.
func (b *Backend) Close() {
	b.server.Close()
}
