// Package audiostream implements the Audio Stream Manager (C5): the
// bookkeeping for a Call's single inbound stream and at most one live
// outbound stream, the 100ms minimum-buffer commit rule with silence
// padding, and the barge-in cancellation sequence.
package audiostream

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/birddigital/voicebridge/pkg/audiocodec"
	"github.com/birddigital/voicebridge/pkg/call"
)

// ErrNoActiveOutput is returned when audio arrives for an output stream
// that has already finished or been cancelled.
var ErrNoActiveOutput = errors.New("audiostream: no active output stream")

// ErrOutputAlreadyActive is returned when a new output stream is
// started while one is already live: at most one output stream may be
// live at a time per spec.
var ErrOutputAlreadyActive = errors.New("audiostream: output stream already active")

// bytesPerMs returns how many bytes of linear PCM16 mono audio
// correspond to one millisecond at the given sample rate.
func bytesPerMs(format call.AudioFormat) int {
	return format.SampleRateHz * 2 / 1000
}

// Manager tracks the input and output audio streams for exactly one
// Call. It is owned by the single goroutine driving that Call and needs
// no internal locking for that reason, except for Metrics-style reads
// that may come from a registry sweep; it uses a small mutex for those.
type Manager struct {
	mu sync.Mutex

	inputFormat  call.AudioFormat
	outputFormat call.AudioFormat

	// MinCommitDuration is the minimum amount of input audio that must
	// be buffered before a commit is allowed; short buffers are padded
	// with silence rather than rejected. Configurable per spec.md's
	// Open Question on whether 100ms is universal across AI peers.
	MinCommitDuration time.Duration

	input        call.InputStream
	inputBuf     []byte
	output       *call.OutputStream
	stoppedIDs   []string // bounded ring of recently-stopped output stream ids
	maxStoppedID int

	// turnActive tracks whether an explicit UserStreamStart has been
	// seen without a matching UserStreamStop yet, for dialects with
	// discrete utterance framing. CommitIfActive is a no-op when false,
	// so a stray UserStreamStop with no prior start is a no-op per spec.
	turnActive bool
}

// NewManager returns a Manager for one Call's streams, with the spec's
// default 100ms minimum commit duration.
func NewManager(inputFormat, outputFormat call.AudioFormat) *Manager {
	return &Manager{
		inputFormat:       inputFormat,
		outputFormat:      outputFormat,
		MinCommitDuration: 100 * time.Millisecond,
		input: call.InputStream{
			ID:        uuid.New().String(),
			Format:    inputFormat,
			StartedAt: time.Now(),
		},
		maxStoppedID: 16,
	}
}

// BeginTurn marks the start of one caller utterance for dialects that
// signal it explicitly (EventUserStreamStart). Any barge-in on the
// live output stream is the caller's responsibility; this only arms
// CommitIfActive.
func (m *Manager) BeginTurn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turnActive = true
}

// CommitIfActive drains and commits the buffered input exactly like
// DrainForCommit, but only if BeginTurn was called since the last
// commit: a UserStreamStop with no prior UserStreamStart is a no-op,
// returning ok=false.
func (m *Manager) CommitIfActive() (buf []byte, ok bool) {
	m.mu.Lock()
	if !m.turnActive {
		m.mu.Unlock()
		return nil, false
	}
	m.turnActive = false
	m.mu.Unlock()
	return m.DrainForCommit(), true
}

// AppendInput records one chunk of caller audio already in inputFormat.
func (m *Manager) AppendInput(chunk []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputBuf = append(m.inputBuf, chunk...)
	m.input.BytesWritten += int64(len(chunk))
}

// ReadyToCommit reports whether enough input audio has accumulated to
// satisfy MinCommitDuration without padding.
func (m *Manager) ReadyToCommit() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bufferedDuration() >= m.MinCommitDuration
}

func (m *Manager) bufferedDuration() time.Duration {
	bpms := bytesPerMs(m.inputFormat)
	if bpms == 0 {
		return 0
	}
	ms := len(m.inputBuf) / bpms
	return time.Duration(ms) * time.Millisecond
}

// DrainForCommit returns the buffered input audio, padded with trailing
// silence up to MinCommitDuration if it falls short, and resets the
// buffer for the next turn. The input stream is marked committed.
func (m *Manager) DrainForCommit() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := m.inputBuf
	m.inputBuf = nil
	m.input.Committed = true

	needed := m.MinCommitDuration
	have := durationFor(len(buf), m.inputFormat)
	if have >= needed {
		return buf
	}

	shortfallMs := (needed - have).Milliseconds()
	padBytes := int(shortfallMs) * bytesPerMs(m.inputFormat)
	return append(buf, audiocodec.SilenceLinear16(padBytes)...)
}

func durationFor(numBytes int, format call.AudioFormat) time.Duration {
	bpms := bytesPerMs(format)
	if bpms == 0 {
		return 0
	}
	return time.Duration(numBytes/bpms) * time.Millisecond
}

// StartOutput begins a new output stream for responseID. Returns
// ErrOutputAlreadyActive if one is already live, enforcing the
// at-most-one-live-output invariant.
func (m *Manager) StartOutput(responseID string) (*call.OutputStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.output != nil && !m.output.Done && !m.output.Cancelled {
		return nil, ErrOutputAlreadyActive
	}
	out := &call.OutputStream{
		ID:         uuid.New().String(),
		ResponseID: responseID,
		Format:     m.outputFormat,
		StartedAt:  time.Now(),
	}
	m.output = out
	return out, nil
}

// AppendOutput records one chunk of AI-peer audio destined for the
// caller. Rejects audio for a stream id that is not the current live
// output (stale chunks arriving after cancellation are discarded per
// the barge-in invariant, not appended).
func (m *Manager) AppendOutput(streamID string, chunk []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.output == nil || m.output.ID != streamID {
		return fmt.Errorf("%w: stream %s", ErrNoActiveOutput, streamID)
	}
	if m.output.Cancelled || m.output.Done {
		// Discard silently: this is the expected shape of audio that was
		// already in flight when CancelOutput fired.
		return nil
	}
	m.output.BytesWritten += int64(len(chunk))
	return nil
}

// FinishOutput marks the current output stream complete (AI peer sent
// response.audio.done / response.done).
func (m *Manager) FinishOutput(streamID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.output != nil && m.output.ID == streamID {
		m.output.Done = true
		m.rememberStopped(streamID)
	}
}

// CancelOutput implements barge-in: the caller began speaking while AI
// audio was playing. It marks the current output stream cancelled so
// any further AppendOutput calls for it are silently discarded, and
// returns the stream's id so the caller can tell the telephony peer to
// stop playback immediately.
func (m *Manager) CancelOutput() (streamID string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.output == nil || m.output.Done || m.output.Cancelled {
		return "", false
	}
	m.output.Cancelled = true
	m.rememberStopped(m.output.ID)
	return m.output.ID, true
}

// IsStopped reports whether streamID refers to an output stream that
// has already finished or been cancelled, supporting idempotent stop
// delivery for retried or duplicate stop signals.
func (m *Manager) IsStopped(streamID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.stoppedIDs {
		if id == streamID {
			return true
		}
	}
	return false
}

func (m *Manager) rememberStopped(id string) {
	m.stoppedIDs = append(m.stoppedIDs, id)
	if len(m.stoppedIDs) > m.maxStoppedID {
		m.stoppedIDs = m.stoppedIDs[len(m.stoppedIDs)-m.maxStoppedID:]
	}
}

// CurrentOutput returns the live output stream, or nil if none.
func (m *Manager) CurrentOutput() *call.OutputStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.output
}
