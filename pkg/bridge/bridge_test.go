package bridge_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birddigital/voicebridge/pkg/bridge"
	"github.com/birddigital/voicebridge/pkg/call"
	"github.com/birddigital/voicebridge/pkg/tasks"
	"github.com/birddigital/voicebridge/pkg/tools"
	"github.com/birddigital/voicebridge/pkg/wireformat/audiocodes"
	"github.com/birddigital/voicebridge/pkg/wireformat/testdialect"
)

// fakeTelephonyConn implements bridge.TelephonyConn backed by an inbound
// queue the test feeds and an outbound slice the test inspects.
type fakeTelephonyConn struct {
	mu      sync.Mutex
	inbound chan []byte
	sent    [][]byte
	closed  bool
}

func newFakeTelephonyConn() *fakeTelephonyConn {
	return &fakeTelephonyConn{inbound: make(chan []byte, 16)}
}

func (f *fakeTelephonyConn) ReadMessage() (int, []byte, error) {
	data, ok := <-f.inbound
	if !ok {
		return 0, nil, context.Canceled
	}
	return 1, data, nil
}

func (f *fakeTelephonyConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeTelephonyConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.inbound)
	}
	return nil
}

func (f *fakeTelephonyConn) SentKinds(t *testing.T) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds := make([]string, 0, len(f.sent))
	for _, raw := range f.sent {
		var frame struct {
			Kind string `json:"kind"`
		}
		require.NoError(t, json.Unmarshal(raw, &frame))
		kinds = append(kinds, frame.Kind)
	}
	return kinds
}

// startFakeAIServer serves a minimal realtime-style websocket endpoint
// that replies to input_audio_buffer.commit with one audio delta turn.
func startFakeAIServer(t *testing.T) *httptest.Server {
	return startFakeAIServerOnTrigger(t, "input_audio_buffer.commit")
}

// startFakeAIServerOnTrigger is like startFakeAIServer but fires the
// canned audio turn only on the given envelope type, so tests driving
// the bridge via a single specific client event (e.g. a seeded
// response.create) don't get a second, unrealistic duplicate turn.
func startFakeAIServerOnTrigger(t *testing.T, trigger string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "")
		ctx := context.Background()

		send := func(v any) {
			b, _ := json.Marshal(v)
			_ = c.Write(ctx, websocket.MessageText, b)
		}
		sendAudioTurn := func() {
			send(map[string]any{"type": "response.created"})
			send(map[string]any{
				"type":        "response.output_item.added",
				"response_id": "resp-1",
				"item":        map[string]any{"id": "item-1", "type": "message"},
			})
			audioB64 := base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4})
			send(map[string]any{
				"type":        "response.audio.delta",
				"response_id": "resp-1",
				"item_id":     "item-1",
				"delta":       audioB64,
			})
			send(map[string]any{"type": "response.audio.done"})
			send(map[string]any{"type": "response.done", "response": map[string]any{"id": "resp-1", "status": "completed"}})
		}

		for {
			_, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			var envelope struct {
				Type string `json:"type"`
			}
			_ = json.Unmarshal(data, &envelope)

			if envelope.Type == trigger {
				sendAudioTurn()
			}
		}
	}))
	return srv
}

func testSessionConfig() call.SessionConfig {
	return call.SessionConfig{
		Model:        "test-model",
		Temperature:  0.8,
		ToolChoice:   "auto",
		InputFormat:  call.AudioFormat{SampleRateHz: 8000, Channels: 1, Encoding: "linear16"},
		OutputFormat: call.AudioFormat{SampleRateHz: 8000, Channels: 1, Encoding: "linear16"},
	}
}

func TestBridgeCommitsAudioAndPlaysBackResponse(t *testing.T) {
	srv := startFakeAIServer(t)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	c := call.New("test", "+15550000000", "", nil)
	c.Config = testSessionConfig()

	telephony := newFakeTelephonyConn()
	registry := tools.NewRegistry()
	srvCtx := bridge.ServerContext{
		AIEndpoint: wsURL,
		AIAPIKey:   "test-key",
		Executor:   tasks.New(0),
	}
	defer srvCtx.Executor.Close()

	br := bridge.New(srvCtx, c, testdialect.New(), telephony, registry)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan bridge.Outcome, 1)
	go func() { done <- br.Run(ctx) }()

	// 100ms of 8kHz mono 16-bit silence triggers an immediate commit.
	telephony.inbound <- []byte(`{"kind":"audio","audio":"` + base64JSONAudio() + `"}`)

	select {
	case outcome := <-done:
		t.Fatalf("bridge exited early with %v", outcome)
	case <-time.After(200 * time.Millisecond):
	}

	telephony.Close()
	outcome := <-done
	assert.Equal(t, bridge.OutcomePeerDisconnected, outcome.Kind)

	kinds := telephony.SentKinds(t)
	assert.Contains(t, kinds, "audio_start")
	assert.Contains(t, kinds, "audio")
	assert.Contains(t, kinds, "audio_stop")
}

func TestBridgeNegotiatesFormatAndSeedsGreeting(t *testing.T) {
	srv := startFakeAIServerOnTrigger(t, "response.create")
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	c := call.New("test", "", "", nil)
	c.Config = testSessionConfig()
	c.Config.VADEnabled = true

	telephony := newFakeTelephonyConn()
	registry := tools.NewRegistry()
	srvCtx := bridge.ServerContext{
		AIEndpoint: wsURL,
		AIAPIKey:   "test-key",
		Executor:   tasks.New(0),
	}
	defer srvCtx.Executor.Close()

	br := bridge.New(srvCtx, c, audiocodes.New(), telephony, registry)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan bridge.Outcome, 1)
	go func() { done <- br.Run(ctx) }()

	telephony.inbound <- []byte(`{"type":"session.initiate","conversationId":"C1","supportedMediaFormats":["raw/lpcm16"],"expectAudioMessages":true}`)

	select {
	case outcome := <-done:
		t.Fatalf("bridge exited early with %v", outcome)
	case <-time.After(200 * time.Millisecond):
	}

	telephony.Close()
	<-done

	var accepted, start, stop bool
	for _, raw := range telephony.sent {
		var frame struct {
			Type        string `json:"type"`
			MediaFormat string `json:"mediaFormat"`
		}
		require.NoError(t, json.Unmarshal(raw, &frame))
		switch frame.Type {
		case "session.accepted":
			accepted = true
			assert.Equal(t, "raw/lpcm16", frame.MediaFormat)
		case "playStream.start":
			start = true
			assert.Equal(t, "raw/lpcm16", frame.MediaFormat)
		case "playStream.stop":
			stop = true
		}
	}
	assert.True(t, accepted, "expected session.accepted frame")
	assert.True(t, start, "expected playStream.start frame")
	assert.True(t, stop, "expected playStream.stop frame")
}

// base64JSONAudio returns 1600 zero bytes (100ms at 8kHz mono 16-bit,
// enough to trigger an immediate commit without padding) as a base64
// string, the way encoding/json marshals []byte.
func base64JSONAudio() string {
	buf := make([]byte, 1600)
	return base64StdEncode(buf)
}

func base64StdEncode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
