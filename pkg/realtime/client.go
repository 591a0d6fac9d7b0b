// Package realtime implements the bridge's connection to the realtime
// AI peer: a bidirectional, JSON-event-stream websocket in the style of
// the OpenAI Realtime API. It owns session configuration validation, the
// typed outbound send surface, and dispatch of the AI peer's event
// taxonomy to handlers registered by pkg/bridge.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"github.com/birddigital/voicebridge/pkg/call"
)

// ConfigError is returned when a SessionConfig violates one of the
// invariants the bridge enforces before ever touching the wire: these
// never reach the AI peer's socket.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("realtime: invalid session config field %q: %s", e.Field, e.Reason)
}

var validToolChoices = map[string]bool{"auto": true, "none": true, "required": true}

// ValidateSessionConfig enforces the bounds spec.md names: temperature
// in [0.6, 1.2], tool_choice either a known enum value or (implicitly) a
// specific tool name already present in Tools.
func ValidateSessionConfig(cfg call.SessionConfig) error {
	if cfg.Model == "" {
		return &ConfigError{Field: "Model", Reason: "must not be empty"}
	}
	if cfg.Temperature < 0.6 || cfg.Temperature > 1.2 {
		return &ConfigError{Field: "Temperature", Reason: "must be within [0.6, 1.2]"}
	}
	if cfg.ToolChoice != "" && !validToolChoices[cfg.ToolChoice] {
		found := false
		for _, t := range cfg.Tools {
			if t.Name == cfg.ToolChoice {
				found = true
				break
			}
		}
		if !found {
			return &ConfigError{Field: "ToolChoice", Reason: "must be auto, none, required, or a declared tool name"}
		}
	}
	return nil
}

// EventHandler receives one decoded AI-peer event. kind is the wire
// "type" field; payload is the still-raw JSON so the handler can decode
// only the fields it needs.
type EventHandler func(kind string, payload json.RawMessage)

// Client owns one websocket connection to the AI peer for the lifetime
// of a single Call. It is not safe to share across Calls.
type Client struct {
	conn   *websocket.Conn
	log    *slog.Logger
	cfg    call.SessionConfig
	frozen bool

	mu       sync.Mutex
	handlers map[string][]EventHandler

	writeMu sync.Mutex
}

// Dial opens the websocket connection to the AI peer and sends the
// initial session.update frame. The Model field of cfg is frozen for the
// life of the returned Client: no method on Client can change it.
func Dial(ctx context.Context, endpoint, apiKey string, cfg call.SessionConfig, log *slog.Logger) (*Client, error) {
	if err := ValidateSessionConfig(cfg); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	conn, _, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{
		HTTPHeader: headerWithAuth(apiKey),
	})
	if err != nil {
		return nil, fmt.Errorf("realtime: dial: %w", err)
	}

	c := &Client{
		conn:     conn,
		log:      log,
		cfg:      cfg,
		frozen:   true,
		handlers: make(map[string][]EventHandler),
	}

	if err := c.sendSessionUpdate(ctx, cfg); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "session update failed")
		return nil, err
	}

	return c, nil
}

// maxAppendChunkBytes caps a single input_audio_buffer.append frame so a
// long committed buffer gets split rather than sent as one oversized
// websocket text frame.
const maxAppendChunkBytes = 32000

// MaxAppendChunkBytes returns the largest audio payload AppendInputAudio
// should be called with at once; callers with larger buffers should
// split them and call it repeatedly.
func (c *Client) MaxAppendChunkBytes() int { return maxAppendChunkBytes }

// OnEvent registers a handler for a given AI-peer event "type" value.
// Multiple handlers per kind are invoked in registration order.
func (c *Client) OnEvent(kind string, h EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[kind] = append(c.handlers[kind], h)
}

// Run reads frames from the AI peer until ctx is cancelled or the
// connection closes, dispatching each to its registered handlers. It
// blocks and should be run in its own goroutine by the caller (pkg/bridge).
func (c *Client) Run(ctx context.Context) error {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return fmt.Errorf("realtime: read: %w", err)
		}

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			c.log.Warn("realtime: undecodable frame from AI peer", "error", err)
			continue
		}

		c.mu.Lock()
		handlers := append([]EventHandler(nil), c.handlers[envelope.Type]...)
		c.mu.Unlock()

		for _, h := range handlers {
			h(envelope.Type, data)
		}
	}
}

// Close terminates the session cleanly. coder/websocket's Close is
// itself safe to call more than once, matching the teacher's
// idempotent-Close convention elsewhere in the bridge.
func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "session ended")
}

func (c *Client) send(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("realtime: marshal: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("realtime: write: %w", err)
	}
	return nil
}

func headerWithAuth(apiKey string) (h map[string][]string) {
	return map[string][]string{
		"Authorization": {"Bearer " + apiKey},
	}
}
