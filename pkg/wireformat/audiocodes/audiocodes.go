// Package audiocodes implements the wireformat.Codec for dialect A: a
// JSON-over-websocket protocol in the style of AudioCodes VAIC, with
// session.initiate/resume/end and userStream.start/chunk/stop inbound
// frames, and session.accepted/session.error,
// userStream.started/stopped/hypothesis, playStream.start/chunk/stop
// outbound frames.
package audiocodes

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/birddigital/voicebridge/pkg/call"
	"github.com/birddigital/voicebridge/pkg/wireformat"
)

const maxChunkBytes = 16000

// Codec implements wireformat.Codec for dialect A.
type Codec struct{}

// New returns a ready-to-use Codec.
func New() *Codec { return &Codec{} }

func (c *Codec) Name() string { return "audiocodes" }

func (c *Codec) MaxChunkBytes() int { return maxChunkBytes }

func (c *Codec) RequiredInboundFormat() call.AudioFormat {
	return call.AudioFormat{SampleRateHz: 16000, Channels: 1, Encoding: "linear16"}
}

func (c *Codec) PreferredOutboundFormat() call.AudioFormat {
	return call.AudioFormat{SampleRateHz: 16000, Channels: 1, Encoding: "linear16"}
}

// SupportedFormats lists the formats this dialect advertises per §6.3,
// most preferred (highest sample rate) first.
func (c *Codec) SupportedFormats() []call.AudioFormat {
	return []call.AudioFormat{
		{SampleRateHz: 16000, Channels: 1, Encoding: "linear16"},
		{SampleRateHz: 8000, Channels: 1, Encoding: "mulaw"},
	}
}

// wireFormatName maps a negotiated AudioFormat to the §6.3 media format
// string; rate is not encoded in the name, it is fixed per dialect.
func wireFormatName(f call.AudioFormat) string {
	switch f.Encoding {
	case "linear16":
		return "raw/lpcm16"
	case "mulaw":
		return "audio/x-mulaw"
	default:
		return ""
	}
}

type wireMessage struct {
	Type                  string   `json:"type"`
	ConversationID        string   `json:"conversationId,omitempty"`
	Caller                string   `json:"caller,omitempty"`
	Callee                string   `json:"callee,omitempty"`
	Audio                 string   `json:"audioChunk,omitempty"`
	Activity              string   `json:"activity,omitempty"`
	Reason                string   `json:"reason,omitempty"`
	Text                  string   `json:"text,omitempty"`
	StreamID              string   `json:"streamId,omitempty"`
	MediaFormat           string   `json:"mediaFormat,omitempty"`
	SupportedMediaFormats []string `json:"supportedMediaFormats,omitempty"`
	ExpectAudioMessages   bool     `json:"expectAudioMessages,omitempty"`
}

func (c *Codec) Decode(raw []byte) (wireformat.Event, error) {
	var m wireMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return wireformat.Event{}, fmt.Errorf("audiocodes: decode: %w", err)
	}

	switch m.Type {
	case "session.initiate":
		return wireformat.Event{
			Kind:             wireformat.EventSessionStart,
			StreamID:         m.ConversationID,
			CallerID:         m.Caller,
			CalledID:         m.Callee,
			Format:           c.RequiredInboundFormat(),
			SupportedFormats: offeredFormats(c.SupportedFormats(), m.SupportedMediaFormats),
			ExpectsGreeting:  m.ExpectAudioMessages,
		}, nil

	case "session.resume":
		return wireformat.Event{
			Kind:     wireformat.EventSessionResume,
			StreamID: m.ConversationID,
		}, nil

	case "userStream.start":
		return wireformat.Event{Kind: wireformat.EventUserStreamStart, StreamID: m.ConversationID}, nil

	case "userStream.chunk":
		audio, err := base64.StdEncoding.DecodeString(m.Audio)
		if err != nil {
			return wireformat.Event{}, fmt.Errorf("audiocodes: decode chunk: %w", err)
		}
		return wireformat.Event{
			Kind:     wireformat.EventAudioChunk,
			StreamID: m.ConversationID,
			Audio:    audio,
			Format:   c.RequiredInboundFormat(),
		}, nil

	case "userStream.stop":
		return wireformat.Event{Kind: wireformat.EventUserStreamStop, StreamID: m.ConversationID}, nil

	case "session.end":
		return wireformat.Event{Kind: wireformat.EventSessionEnd, StreamID: m.ConversationID}, nil

	case "activities":
		return wireformat.Event{
			Kind:       wireformat.EventControl,
			StreamID:   m.ConversationID,
			ControlTag: m.Activity,
		}, nil

	default:
		return wireformat.Event{Kind: wireformat.EventUnknown}, nil
	}
}

// offeredFormats intersects the peer's named formats with the locally
// supported formats, preserving the local preference order (§6.3:
// "prefer the highest sample rate the peer supports that is also
// supported by the AI peer").
// offeredFormats returns nil when the peer sent no supportedMediaFormats
// at all (no negotiation requested, caller should fall back to the
// dialect's fixed default), and a non-nil (possibly empty) slice when
// the peer did offer formats: empty means the intersection with the
// locally supported formats was empty and the session must be rejected.
func offeredFormats(local []call.AudioFormat, names []string) []call.AudioFormat {
	if len(names) == 0 {
		return nil
	}
	offered := make(map[string]bool, len(names))
	for _, n := range names {
		offered[n] = true
	}
	out := []call.AudioFormat{}
	for _, f := range local {
		if offered[wireFormatName(f)] {
			out = append(out, f)
		}
	}
	return out
}

func (c *Codec) Encode(a wireformat.Action) ([]byte, error) {
	switch a.Kind {
	case wireformat.ActionAccept:
		m := wireMessage{Type: "session.accepted", ConversationID: a.StreamID, MediaFormat: wireFormatName(a.Format)}
		return json.Marshal(m)

	case wireformat.ActionSessionReject:
		m := wireMessage{Type: "session.error", ConversationID: a.StreamID, Reason: a.Text}
		return json.Marshal(m)

	case wireformat.ActionAudioStart:
		m := wireMessage{
			Type:           "playStream.start",
			ConversationID: a.StreamID,
			StreamID:       a.OutputID,
			MediaFormat:    wireFormatName(a.Format),
		}
		return json.Marshal(m)

	case wireformat.ActionAudioChunk:
		m := wireMessage{
			Type:           "playStream.chunk",
			ConversationID: a.StreamID,
			StreamID:       a.OutputID,
			Audio:          base64.StdEncoding.EncodeToString(a.Audio),
		}
		return json.Marshal(m)

	case wireformat.ActionAudioStop:
		m := wireMessage{Type: "playStream.stop", ConversationID: a.StreamID, StreamID: a.OutputID}
		return json.Marshal(m)

	case wireformat.ActionHypothesis:
		m := wireMessage{Type: "userStream.hypothesis", ConversationID: a.StreamID, Text: a.Text}
		return json.Marshal(m)

	case wireformat.ActionError:
		m := wireMessage{Type: "session.error", ConversationID: a.StreamID, Reason: a.Text}
		return json.Marshal(m)

	case wireformat.ActionEnd:
		m := wireMessage{Type: "session.end", ConversationID: a.StreamID}
		return json.Marshal(m)

	default:
		return nil, fmt.Errorf("audiocodes: unsupported action kind %d", a.Kind)
	}
}
