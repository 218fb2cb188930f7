package agent

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/substrate/llms"
)

func TestSessionStoreSaveAndLoadHistory(t *testing.T) {
	root := t.TempDir()
	s := NewSessionStore(root)

	msgs := []llms.ChatMessage{
		{Role: llms.RoleUser, Content: "hi"},
		{Role: llms.RoleAssistant, Content: "hello"},
	}
	require.NoError(t, s.SaveHistory("s1", msgs))

	got, err := s.LoadHistory("s1")
	require.NoError(t, err)
	assert.Equal(t, msgs, got)

	assert.FileExists(t, filepath.Join(root, ".substrate", "history", "history.json"))
}

func TestSessionStorePreservesOtherSessionsOnSave(t *testing.T) {
	root := t.TempDir()
	s := NewSessionStore(root)

	require.NoError(t, s.SaveHistory("s1", []llms.ChatMessage{{Role: llms.RoleUser, Content: "a"}}))
	require.NoError(t, s.SaveHistory("s2", []llms.ChatMessage{{Role: llms.RoleUser, Content: "b"}}))

	got, err := s.LoadHistory("s1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Content)
}

func TestSessionStoreLoadHistoryMissingReturnsNil(t *testing.T) {
	s := NewSessionStore(t.TempDir())
	got, err := s.LoadHistory("nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionStoreSaveReport(t *testing.T) {
	root := t.TempDir()
	s := NewSessionStore(root)

	report := SessionReport{SessionID: "s1", MessageCount: 4, InvokedAgents: []string{"a1"}}
	require.NoError(t, s.SaveReport(report))

	assert.FileExists(t, filepath.Join(root, ".substrate", "sessions", "s1.json"))
}
