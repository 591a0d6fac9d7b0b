// Package testdialect implements the generic inbound test variant named
// in the wire codec design: a minimal JSON envelope with no external
// transport quirks, used by integration tests and scripted validators
// that don't need to emulate a specific vendor's protocol.
package testdialect

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/birddigital/voicebridge/pkg/call"
	"github.com/birddigital/voicebridge/pkg/wireformat"
)

// Codec implements wireformat.Codec with a minimal {"kind": ...} envelope.
type Codec struct {
	InboundFormat  call.AudioFormat
	OutboundFormat call.AudioFormat
}

// New returns a Codec defaulting both formats to 8kHz mono linear16,
// a convenient lowest-common-denominator for scripted tests.
func New() *Codec {
	fmt8k := call.AudioFormat{SampleRateHz: 8000, Channels: 1, Encoding: "linear16"}
	return &Codec{InboundFormat: fmt8k, OutboundFormat: fmt8k}
}

func (c *Codec) Name() string { return "test" }

func (c *Codec) MaxChunkBytes() int { return math.MaxInt32 }

func (c *Codec) RequiredInboundFormat() call.AudioFormat { return c.InboundFormat }

func (c *Codec) PreferredOutboundFormat() call.AudioFormat { return c.OutboundFormat }

// SupportedFormats returns the codec's single configured inbound format.
func (c *Codec) SupportedFormats() []call.AudioFormat { return []call.AudioFormat{c.InboundFormat} }

type frame struct {
	Kind     string `json:"kind"`
	StreamID string `json:"stream_id,omitempty"`
	OutputID string `json:"output_id,omitempty"`
	CallerID string `json:"caller_id,omitempty"`
	CalledID string `json:"called_id,omitempty"`
	Audio    []byte `json:"audio,omitempty"`
	Text     string `json:"text,omitempty"`
	Final    bool   `json:"final,omitempty"`
}

func (c *Codec) Decode(raw []byte) (wireformat.Event, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return wireformat.Event{}, fmt.Errorf("testdialect: decode: %w", err)
	}

	switch f.Kind {
	case "start":
		return wireformat.Event{
			Kind: wireformat.EventSessionStart, StreamID: f.StreamID,
			CallerID: f.CallerID, CalledID: f.CalledID, Format: c.InboundFormat,
		}, nil
	case "resume":
		return wireformat.Event{Kind: wireformat.EventSessionResume, StreamID: f.StreamID}, nil
	case "audio":
		return wireformat.Event{
			Kind: wireformat.EventAudioChunk, StreamID: f.StreamID,
			Audio: f.Audio, Format: c.InboundFormat,
		}, nil
	case "end":
		return wireformat.Event{Kind: wireformat.EventSessionEnd, StreamID: f.StreamID}, nil
	default:
		return wireformat.Event{Kind: wireformat.EventUnknown}, nil
	}
}

func (c *Codec) Encode(a wireformat.Action) ([]byte, error) {
	switch a.Kind {
	case wireformat.ActionAccept:
		return json.Marshal(frame{Kind: "accepted", StreamID: a.StreamID})
	case wireformat.ActionSessionReject:
		return json.Marshal(frame{Kind: "rejected", StreamID: a.StreamID, Text: a.Text})
	case wireformat.ActionAudioStart:
		return json.Marshal(frame{Kind: "audio_start", StreamID: a.StreamID, OutputID: a.OutputID})
	case wireformat.ActionAudioChunk:
		return json.Marshal(frame{Kind: "audio", StreamID: a.StreamID, OutputID: a.OutputID, Audio: a.Audio})
	case wireformat.ActionAudioStop:
		return json.Marshal(frame{Kind: "audio_stop", StreamID: a.StreamID, OutputID: a.OutputID})
	case wireformat.ActionHypothesis:
		return json.Marshal(frame{Kind: "hypothesis", StreamID: a.StreamID, Text: a.Text, Final: a.Final})
	case wireformat.ActionError:
		return json.Marshal(frame{Kind: "error", StreamID: a.StreamID, Text: a.Text})
	case wireformat.ActionEnd:
		return json.Marshal(frame{Kind: "end", StreamID: a.StreamID})
	default:
		return nil, fmt.Errorf("testdialect: unsupported action kind %d", a.Kind)
	}
}
