package session_test

import (
	"testing"

	"github.com/birddigital/voicebridge/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHappyPathTransitionsInOrder(t *testing.T) {
	m := session.New()
	require.Equal(t, session.StateInit, m.State())

	require.NoError(t, m.Accept())
	assert.Equal(t, session.StateAccepting, m.State())

	require.NoError(t, m.Activate())
	assert.Equal(t, session.StateActive, m.State())

	require.NoError(t, m.End())
	assert.Equal(t, session.StateEnding, m.State())

	require.NoError(t, m.Close())
	assert.Equal(t, session.StateClosed, m.State())
}

func TestEndIsIdempotent(t *testing.T) {
	m := session.New()
	require.NoError(t, m.Accept())
	require.NoError(t, m.Activate())
	require.NoError(t, m.End())
	require.NoError(t, m.End())
	assert.Equal(t, session.StateEnding, m.State())
}

func TestCloseIsIdempotent(t *testing.T) {
	m := session.New()
	require.NoError(t, m.Accept())
	require.NoError(t, m.Activate())
	require.NoError(t, m.End())
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Equal(t, session.StateClosed, m.State())
}

func TestNoReentryIntoClosed(t *testing.T) {
	m := session.New()
	require.NoError(t, m.Accept())
	require.NoError(t, m.Activate())
	require.NoError(t, m.End())
	require.NoError(t, m.Close())

	err := m.Accept()
	require.Error(t, err)
	var te *session.TransitionError
	assert.ErrorAs(t, err, &te)
}

func TestActivateFromInitIsIllegal(t *testing.T) {
	m := session.New()
	err := m.Activate()
	require.Error(t, err)
}

func TestEndFromInitSkipsAcceptingAndActive(t *testing.T) {
	m := session.New()
	require.NoError(t, m.End())
	assert.Equal(t, session.StateEnding, m.State())
}
