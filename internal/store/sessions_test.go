package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sessionIDs(sessions []Session) []string {
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	return ids
}

func TestSessionStore_SelectIsNoOpWhenCurrent(t *testing.T) {
	s := NewSessionStore()
	s.Replace([]Session{{ID: "a"}, {ID: "b"}})

	changed, err := s.Select("a")
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = s.Select("a")
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, "a", s.Current())
}

func TestSessionStore_SelectUnknownIsRejected(t *testing.T) {
	s := NewSessionStore()
	s.Replace([]Session{{ID: "a"}})

	_, err := s.Select("zzz")
	require.ErrorIs(t, err, ErrUnknownSession)
	require.Equal(t, "", s.Current())

	changed, err := s.Select("")
	require.NoError(t, err)
	require.False(t, changed)
}

func TestSessionStore_PrependPutsNewestFirst(t *testing.T) {
	s := NewSessionStore()
	s.Replace([]Session{{ID: "b"}, {ID: "a"}})
	s.Prepend(Session{ID: "c", Title: "New Chat"})

	require.Equal(t, []string{"c", "b", "a"}, sessionIDs(s.Sessions()))
	got, ok := s.Get("c")
	require.True(t, ok)
	require.Equal(t, "New Chat", got.Title)
}

func TestSessionStore_RemoveCurrentPromotesHead(t *testing.T) {
	s := NewSessionStore()
	s.Replace([]Session{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	_, err := s.Select("b")
	require.NoError(t, err)

	next, changed := s.Remove("b")
	require.True(t, changed)
	require.Equal(t, "a", next)
	require.Equal(t, []string{"a", "c"}, sessionIDs(s.Sessions()))

	next, changed = s.Remove("a")
	require.True(t, changed)
	require.Equal(t, "c", next)

	next, changed = s.Remove("c")
	require.True(t, changed)
	require.Equal(t, "", next)
	require.Empty(t, s.Sessions())
}

func TestSessionStore_RemoveOtherKeepsSelection(t *testing.T) {
	s := NewSessionStore()
	s.Replace([]Session{{ID: "a"}, {ID: "b"}})
	_, err := s.Select("a")
	require.NoError(t, err)

	next, changed := s.Remove("b")
	require.False(t, changed)
	require.Equal(t, "a", next)

	next, changed = s.Remove("missing")
	require.False(t, changed)
	require.Equal(t, "a", next)
}

func TestSessionStore_ReplaceDropsVanishedSelection(t *testing.T) {
	s := NewSessionStore()
	s.Replace([]Session{{ID: "a"}, {ID: "b"}})
	_, err := s.Select("b")
	require.NoError(t, err)

	require.False(t, s.Replace([]Session{{ID: "c"}, {ID: "b"}}))
	require.Equal(t, "b", s.Current())

	require.True(t, s.Replace([]Session{{ID: "c"}}))
	require.Equal(t, "", s.Current())
}

func TestSessionStore_ReplaceSinceReplaysLocalChanges(t *testing.T) {
	s := NewSessionStore()
	s.Replace([]Session{{ID: "b"}, {ID: "a"}})
	_, err := s.Select("b")
	require.NoError(t, err)

	since := s.Version()
	s.Prepend(Session{ID: "c"})
	_, err = s.Select("c")
	require.NoError(t, err)
	s.Remove("a")

	// The listing was taken before c existed and while a still did.
	require.False(t, s.ReplaceSince([]Session{{ID: "b"}, {ID: "a"}}, since))
	require.Equal(t, []string{"c", "b"}, sessionIDs(s.Sessions()))
	require.Equal(t, "c", s.Current())

	// A listing that already contains c does not duplicate it.
	require.False(t, s.ReplaceSince([]Session{{ID: "c"}, {ID: "b"}}, since))
	require.Equal(t, []string{"c", "b"}, sessionIDs(s.Sessions()))
}

func TestSessionStore_ReplaceSinceIgnoresOlderListing(t *testing.T) {
	s := NewSessionStore()
	old := s.Version()
	s.Prepend(Session{ID: "a"})

	s.Replace([]Session{{ID: "a"}, {ID: "z"}})
	require.False(t, s.ReplaceSince(nil, old))
	require.Equal(t, []string{"a", "z"}, sessionIDs(s.Sessions()))
}
