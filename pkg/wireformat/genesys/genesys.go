// Package genesys implements the wireformat.Codec for the third
// recognized dialect: an AudioHook-style JSON envelope protocol, where
// every frame carries a "type" and a "parameters" object. Audio travels
// as base64 in the parameters of JSON frames ("audio" inbound,
// "playback" outbound); binary frames are not decoded.
package genesys

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/birddigital/voicebridge/pkg/call"
	"github.com/birddigital/voicebridge/pkg/wireformat"
)

const maxChunkBytes = 16000

// Codec implements wireformat.Codec for the AudioHook-style dialect.
type Codec struct{}

// New returns a ready-to-use Codec.
func New() *Codec { return &Codec{} }

func (c *Codec) Name() string { return "genesys" }

func (c *Codec) MaxChunkBytes() int { return maxChunkBytes }

func (c *Codec) RequiredInboundFormat() call.AudioFormat {
	return call.AudioFormat{SampleRateHz: 8000, Channels: 1, Encoding: "linear16"}
}

func (c *Codec) PreferredOutboundFormat() call.AudioFormat {
	return call.AudioFormat{SampleRateHz: 8000, Channels: 1, Encoding: "linear16"}
}

// SupportedFormats returns the dialect's single fixed format: this
// protocol has no format negotiation handshake.
func (c *Codec) SupportedFormats() []call.AudioFormat {
	return []call.AudioFormat{{SampleRateHz: 8000, Channels: 1, Encoding: "linear16"}}
}

type envelope struct {
	Type       string          `json:"type"`
	ID         string          `json:"id,omitempty"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

type openParams struct {
	ConversationID string `json:"conversationId"`
	ANI            string `json:"ani"`
	DNIS           string `json:"dnis"`
}

type audioParams struct {
	AudioBase64 string `json:"audio"`
}

func (c *Codec) Decode(raw []byte) (wireformat.Event, error) {
	var e envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return wireformat.Event{}, fmt.Errorf("genesys: decode: %w", err)
	}

	switch e.Type {
	case "open":
		var p openParams
		if len(e.Parameters) > 0 {
			if err := json.Unmarshal(e.Parameters, &p); err != nil {
				return wireformat.Event{}, fmt.Errorf("genesys: decode open parameters: %w", err)
			}
		}
		return wireformat.Event{
			Kind:     wireformat.EventSessionStart,
			StreamID: p.ConversationID,
			CallerID: p.ANI,
			CalledID: p.DNIS,
			Format:   c.RequiredInboundFormat(),
		}, nil

	case "audio":
		var p audioParams
		if len(e.Parameters) > 0 {
			if err := json.Unmarshal(e.Parameters, &p); err != nil {
				return wireformat.Event{}, fmt.Errorf("genesys: decode audio parameters: %w", err)
			}
		}
		audio, err := base64.StdEncoding.DecodeString(p.AudioBase64)
		if err != nil {
			return wireformat.Event{}, fmt.Errorf("genesys: decode audio payload: %w", err)
		}
		return wireformat.Event{
			Kind:     wireformat.EventAudioChunk,
			StreamID: e.ID,
			Audio:    audio,
			Format:   c.RequiredInboundFormat(),
		}, nil

	case "close":
		return wireformat.Event{Kind: wireformat.EventSessionEnd, StreamID: e.ID}, nil

	case "ping":
		return wireformat.Event{Kind: wireformat.EventUnknown}, nil

	default:
		return wireformat.Event{Kind: wireformat.EventUnknown}, nil
	}
}

func (c *Codec) Encode(a wireformat.Action) ([]byte, error) {
	switch a.Kind {
	case wireformat.ActionAccept:
		e := envelope{Type: "opened", ID: a.StreamID}
		return json.Marshal(e)

	case wireformat.ActionSessionReject:
		e := envelope{Type: "error", ID: a.StreamID}
		return json.Marshal(e)

	case wireformat.ActionAudioStart:
		// This dialect has no discrete stream-start frame; the first
		// "playback" envelope implicitly begins playback.
		return nil, nil

	case wireformat.ActionAudioChunk:
		params, err := json.Marshal(audioParams{AudioBase64: base64.StdEncoding.EncodeToString(a.Audio)})
		if err != nil {
			return nil, err
		}
		e := envelope{Type: "playback", ID: a.StreamID, Parameters: params}
		return json.Marshal(e)

	case wireformat.ActionAudioStop:
		e := envelope{Type: "discard", ID: a.StreamID}
		return json.Marshal(e)

	case wireformat.ActionHypothesis:
		// The genesys dialect here has no captioning channel; hypothesis
		// actions are no-ops for this dialect.
		return nil, nil

	case wireformat.ActionError:
		e := envelope{Type: "error", ID: a.StreamID}
		return json.Marshal(e)

	case wireformat.ActionEnd:
		e := envelope{Type: "close", ID: a.StreamID}
		return json.Marshal(e)

	default:
		return nil, fmt.Errorf("genesys: unsupported action kind %d", a.Kind)
	}
}
