package realtime

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/birddigital/voicebridge/pkg/call"
)

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Model             string        `json:"model"`
	Instructions      string        `json:"instructions,omitempty"`
	Voice             string        `json:"voice,omitempty"`
	Temperature       float64       `json:"temperature,omitempty"`
	ToolChoice        string        `json:"tool_choice,omitempty"`
	Tools             []oaiTool     `json:"tools,omitempty"`
	InputAudioFormat  string        `json:"input_audio_format,omitempty"`
	OutputAudioFormat string        `json:"output_audio_format,omitempty"`
	TurnDetection     *turnDetection `json:"turn_detection,omitempty"`
}

type turnDetection struct {
	Type string `json:"type"`
}

type oaiTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

func audioFormatWireName(f call.AudioFormat) string {
	switch f.Encoding {
	case "mulaw":
		return "g711_ulaw"
	case "linear16":
		return "pcm16"
	default:
		return f.Encoding
	}
}

func (c *Client) sendSessionUpdate(ctx context.Context, cfg call.SessionConfig) error {
	tools := make([]oaiTool, 0, len(cfg.Tools))
	for _, t := range cfg.Tools {
		tools = append(tools, oaiTool{Type: "function", Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}

	var td *turnDetection
	if cfg.VADEnabled {
		td = &turnDetection{Type: "server_vad"}
	}

	msg := sessionUpdateMessage{
		Type: "session.update",
		Session: sessionParams{
			Model:             cfg.Model,
			Instructions:      cfg.Instructions,
			Voice:             cfg.Voice,
			Temperature:       cfg.Temperature,
			ToolChoice:        cfg.ToolChoice,
			Tools:             tools,
			InputAudioFormat:  audioFormatWireName(cfg.InputFormat),
			OutputAudioFormat: audioFormatWireName(cfg.OutputFormat),
			TurnDetection:     td,
		},
	}
	return c.send(ctx, msg)
}

// UpdateTools re-sends session.update with a new tool list. The model id
// and all other fields from the frozen initial SessionConfig are
// preserved; only Tools changes.
func (c *Client) UpdateTools(ctx context.Context, tools []call.ToolDefinition) error {
	c.cfg.Tools = tools
	return c.sendSessionUpdate(ctx, c.cfg)
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// AppendInputAudio sends one chunk of caller audio to the AI peer's
// input audio buffer. pcm must already be in the negotiated InputFormat.
func (c *Client) AppendInputAudio(ctx context.Context, pcm []byte) error {
	return c.send(ctx, appendAudioMessage{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(pcm),
	})
}

// CommitInputAudio closes the current input turn, asking the AI peer to
// treat the buffered audio as a complete utterance.
func (c *Client) CommitInputAudio(ctx context.Context) error {
	return c.send(ctx, map[string]string{"type": "input_audio_buffer.commit"})
}

// ClearInputAudio discards any buffered, uncommitted input audio.
func (c *Client) ClearInputAudio(ctx context.Context) error {
	return c.send(ctx, map[string]string{"type": "input_audio_buffer.clear"})
}

type conversationItem struct {
	Type    string             `json:"type"`
	CallID  string             `json:"call_id,omitempty"`
	Output  string             `json:"output,omitempty"`
	Role    string             `json:"role,omitempty"`
	Content []conversationPart `json:"content,omitempty"`
}

type conversationPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type createConversationItemMessage struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

// CreateTextContext injects a text message into the session's rolling
// context without waiting for caller audio, used to surface out-of-band
// facts (e.g. IVR-collected account numbers) before the AI peer speaks.
func (c *Client) CreateTextContext(ctx context.Context, role, text string) error {
	return c.send(ctx, createConversationItemMessage{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type:    "message",
			Role:    role,
			Content: []conversationPart{{Type: "input_text", Text: text}},
		},
	})
}

// SendFunctionResult answers a completed tool call and is always
// followed by CreateResponse so the AI peer continues the conversation
// with the tool's result in context, per the function-call-dispatch
// contract.
func (c *Client) SendFunctionResult(ctx context.Context, callID string, result string) error {
	if err := c.send(ctx, createConversationItemMessage{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type:   "function_call_output",
			CallID: callID,
			Output: result,
		},
	}); err != nil {
		return fmt.Errorf("realtime: send function result: %w", err)
	}
	return c.CreateResponse(ctx)
}

// CreateResponse asks the AI peer to begin generating a response from
// the current conversation state.
func (c *Client) CreateResponse(ctx context.Context) error {
	return c.send(ctx, map[string]string{"type": "response.create"})
}

// CancelResponse asks the AI peer to stop generating its current
// response immediately, used on barge-in.
func (c *Client) CancelResponse(ctx context.Context) error {
	return c.send(ctx, map[string]string{"type": "response.cancel"})
}
