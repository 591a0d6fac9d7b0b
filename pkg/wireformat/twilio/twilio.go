// Package twilio implements the wireformat.Codec for dialect B: the
// framed, event-field JSON protocol shared by Twilio Media Streams and
// SignalWire's compatible streaming API. This is a direct generalization
// of the teacher's SignalWire-only message handling: every inbound frame
// carries an "event" field, and outbound frames are keyed the same way.
package twilio

import (
	"encoding/base64"
	"encoding/json"
	"encoding/xml"
	"fmt"

	"github.com/birddigital/voicebridge/pkg/call"
	"github.com/birddigital/voicebridge/pkg/wireformat"
)

const maxChunkBytes = 3200

// Codec implements wireformat.Codec for the Twilio/SignalWire Media
// Streams dialect.
type Codec struct{}

// New returns a ready-to-use Codec. There is no per-connection state:
// the same Codec value may be shared across Calls.
func New() *Codec { return &Codec{} }

func (c *Codec) Name() string { return "twilio" }

func (c *Codec) MaxChunkBytes() int { return maxChunkBytes }

func (c *Codec) RequiredInboundFormat() call.AudioFormat { return call.FormatTelephonyMulaw }

func (c *Codec) PreferredOutboundFormat() call.AudioFormat { return call.FormatTelephonyMulaw }

// SupportedFormats returns the dialect's single fixed format: this
// protocol has no format negotiation handshake.
func (c *Codec) SupportedFormats() []call.AudioFormat {
	return []call.AudioFormat{call.FormatTelephonyMulaw}
}

type wireFrame struct {
	Event     string          `json:"event"`
	StreamSid string          `json:"streamSid,omitempty"`
	Start     *wireStart      `json:"start,omitempty"`
	Media     *wireMedia      `json:"media,omitempty"`
	Mark      *wireMark       `json:"mark,omitempty"`
	Stop      *wireStop       `json:"stop,omitempty"`
	Raw       json.RawMessage `json:"-"`
}

type wireStart struct {
	CallSid          string            `json:"callSid,omitempty"`
	AccountSid       string            `json:"accountSid,omitempty"`
	Tracks           []string          `json:"tracks,omitempty"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

type wireMedia struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

type wireMark struct {
	Name string `json:"name"`
}

type wireStop struct {
	CallSid    string `json:"callSid,omitempty"`
	AccountSid string `json:"accountSid,omitempty"`
}

func (c *Codec) Decode(raw []byte) (wireformat.Event, error) {
	var f wireFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return wireformat.Event{}, fmt.Errorf("twilio: decode: %w", err)
	}

	switch f.Event {
	case "start":
		caller := ""
		called := ""
		if f.Start != nil {
			caller = f.Start.CustomParameters["caller_id"]
			called = f.Start.CustomParameters["called_id"]
		}
		return wireformat.Event{
			Kind:     wireformat.EventSessionStart,
			StreamID: f.StreamSid,
			CallerID: caller,
			CalledID: called,
			Format:   call.FormatTelephonyMulaw,
		}, nil

	case "media":
		if f.Media == nil || f.Media.Track != "" && f.Media.Track != "inbound" {
			return wireformat.Event{Kind: wireformat.EventUnknown}, nil
		}
		payload := ""
		if f.Media != nil {
			payload = f.Media.Payload
		}
		audio, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return wireformat.Event{}, fmt.Errorf("twilio: decode media payload: %w", err)
		}
		return wireformat.Event{
			Kind:     wireformat.EventAudioChunk,
			StreamID: f.StreamSid,
			Audio:    audio,
			Format:   call.FormatTelephonyMulaw,
		}, nil

	case "stop":
		return wireformat.Event{Kind: wireformat.EventSessionEnd, StreamID: f.StreamSid}, nil

	case "connected":
		return wireformat.Event{Kind: wireformat.EventUnknown}, nil

	default:
		return wireformat.Event{Kind: wireformat.EventUnknown}, nil
	}
}

func (c *Codec) Encode(a wireformat.Action) ([]byte, error) {
	switch a.Kind {
	case wireformat.ActionAudioStart:
		// Dialect B's transport has no discrete stream-start frame; the
		// first "media" event implicitly begins playback.
		return nil, nil

	case wireformat.ActionSessionReject:
		frame := map[string]any{"event": "error", "streamSid": a.StreamID, "message": a.Text}
		return json.Marshal(frame)

	case wireformat.ActionAudioChunk:
		frame := wireFrame{
			Event:     "media",
			StreamSid: a.StreamID,
			Media:     &wireMedia{Payload: base64.StdEncoding.EncodeToString(a.Audio)},
		}
		return json.Marshal(frame)

	case wireformat.ActionAudioStop:
		frame := map[string]any{"event": "clear", "streamSid": a.StreamID}
		return json.Marshal(frame)

	case wireformat.ActionAccept:
		frame := map[string]any{"event": "connected"}
		return json.Marshal(frame)

	case wireformat.ActionHypothesis:
		// Dialect B's transport has no native captioning frame; the
		// "mark" event is repurposed to surface a transcript label the
		// telephony side can log or ignore.
		frame := wireFrame{Event: "mark", StreamSid: a.StreamID, Mark: &wireMark{Name: a.Text}}
		return json.Marshal(frame)

	case wireformat.ActionError:
		frame := map[string]any{"event": "error", "streamSid": a.StreamID, "message": a.Text}
		return json.Marshal(frame)

	case wireformat.ActionEnd:
		frame := map[string]any{"event": "stop", "streamSid": a.StreamID}
		return json.Marshal(frame)

	default:
		return nil, fmt.Errorf("twilio: unsupported action kind %d", a.Kind)
	}
}

// TwiMLStreamDocument renders the <Start><Stream> document dialect B's
// call-setup webhook must return so the telephony infrastructure
// connects its media stream to wsURL. Adapted directly from the
// teacher's TwiML generation in call-handlers.go.
type TwiMLStreamDocument struct {
	XMLName xml.Name      `xml:"Response"`
	Start   *twimlStart   `xml:"Start"`
}

type twimlStart struct {
	XMLName xml.Name     `xml:"Start"`
	Stream  twimlStreamEl `xml:"Stream"`
}

type twimlStreamEl struct {
	XMLName xml.Name `xml:"Stream"`
	URL     string   `xml:"url,attr"`
	Track   string   `xml:"track,attr"`
}

// RenderTwiMLStream returns the marshaled XML document for a given
// websocket URL.
func RenderTwiMLStream(wsURL string) ([]byte, error) {
	doc := TwiMLStreamDocument{
		Start: &twimlStart{
			Stream: twimlStreamEl{URL: wsURL, Track: "inbound_track"},
		},
	}
	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("twilio: render twiml: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}
