package audiostream_test

import (
	"testing"
	"time"

	"github.com/birddigital/voicebridge/pkg/audiostream"
	"github.com/birddigital/voicebridge/pkg/call"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linear16Format() call.AudioFormat {
	return call.AudioFormat{SampleRateHz: 8000, Channels: 1, Encoding: "linear16"}
}

func TestDrainForCommitPadsShortBufferToMinimum(t *testing.T) {
	m := audiostream.NewManager(linear16Format(), linear16Format())
	m.MinCommitDuration = 100 * time.Millisecond

	// 10ms of audio at 8kHz mono 16-bit = 160 bytes.
	m.AppendInput(make([]byte, 160))
	assert.False(t, m.ReadyToCommit())

	out := m.DrainForCommit()
	// 100ms at 8kHz mono 16-bit = 1600 bytes.
	assert.Len(t, out, 1600)
}

func TestDrainForCommitDoesNotPadWhenAlreadyLongEnough(t *testing.T) {
	m := audiostream.NewManager(linear16Format(), linear16Format())
	full := make([]byte, 1600)
	m.AppendInput(full)
	assert.True(t, m.ReadyToCommit())

	out := m.DrainForCommit()
	assert.Len(t, out, 1600)
}

func TestOnlyOneLiveOutputStreamAtATime(t *testing.T) {
	m := audiostream.NewManager(linear16Format(), linear16Format())
	_, err := m.StartOutput("resp-1")
	require.NoError(t, err)

	_, err = m.StartOutput("resp-2")
	assert.ErrorIs(t, err, audiostream.ErrOutputAlreadyActive)
}

func TestNewOutputAllowedAfterPreviousFinishes(t *testing.T) {
	m := audiostream.NewManager(linear16Format(), linear16Format())
	s1, err := m.StartOutput("resp-1")
	require.NoError(t, err)
	m.FinishOutput(s1.ID)

	s2, err := m.StartOutput("resp-2")
	require.NoError(t, err)
	assert.NotEqual(t, s1.ID, s2.ID)
}

func TestBargeInCancelsOutputAndDiscardsLateAudio(t *testing.T) {
	m := audiostream.NewManager(linear16Format(), linear16Format())
	s1, err := m.StartOutput("resp-1")
	require.NoError(t, err)

	require.NoError(t, m.AppendOutput(s1.ID, make([]byte, 320)))

	cancelledID, ok := m.CancelOutput()
	require.True(t, ok)
	assert.Equal(t, s1.ID, cancelledID)

	// Late-arriving audio for the cancelled stream is silently discarded,
	// not an error, and does not grow BytesWritten.
	require.NoError(t, m.AppendOutput(s1.ID, make([]byte, 320)))
	assert.Equal(t, int64(320), m.CurrentOutput().BytesWritten)
	assert.True(t, m.IsStopped(s1.ID))
}

func TestCancelOutputIsFalseWhenNothingLive(t *testing.T) {
	m := audiostream.NewManager(linear16Format(), linear16Format())
	_, ok := m.CancelOutput()
	assert.False(t, ok)
}

func TestAppendOutputRejectsUnknownStreamID(t *testing.T) {
	m := audiostream.NewManager(linear16Format(), linear16Format())
	err := m.AppendOutput("does-not-exist", []byte{1, 2})
	assert.ErrorIs(t, err, audiostream.ErrNoActiveOutput)
}

func TestCommitIfActiveIsNoOpWithoutBeginTurn(t *testing.T) {
	m := audiostream.NewManager(linear16Format(), linear16Format())
	m.AppendInput(make([]byte, 160))

	buf, ok := m.CommitIfActive()
	assert.False(t, ok)
	assert.Nil(t, buf)
}

func TestCommitIfActiveDrainsAndPadsAfterBeginTurn(t *testing.T) {
	m := audiostream.NewManager(linear16Format(), linear16Format())
	m.MinCommitDuration = 100 * time.Millisecond
	m.BeginTurn()

	// 40ms of audio at 8kHz mono 16-bit = 640 bytes, short of the 100ms
	// minimum, exercising the silence-padding path reachable only via an
	// explicit stop rather than the threshold-triggered auto-commit.
	m.AppendInput(make([]byte, 640))

	buf, ok := m.CommitIfActive()
	require.True(t, ok)
	assert.Len(t, buf, 1600)

	// A second stop without an intervening start is a no-op.
	_, ok = m.CommitIfActive()
	assert.False(t, ok)
}
