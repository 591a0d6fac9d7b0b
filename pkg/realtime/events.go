package realtime

import "encoding/json"

// The structs below decode the AI peer's server-sent event payloads.
// pkg/bridge registers an EventHandler per Kind constant and unmarshals
// the raw payload into the matching struct; Client itself never
// interprets these fields; it only demultiplexes by the wire "type".

const (
	EventSessionCreated               = "session.created"
	EventSessionUpdated               = "session.updated"
	EventConversationItemCreated      = "conversation.item.created"
	EventInputAudioBufferCommitted    = "input_audio_buffer.committed"
	EventInputAudioBufferSpeechStart  = "input_audio_buffer.speech_started"
	EventInputAudioBufferSpeechStop   = "input_audio_buffer.speech_stopped"
	EventResponseCreated              = "response.created"
	EventResponseOutputItemAdded      = "response.output_item.added"
	EventResponseContentPartAdded     = "response.content_part.added"
	EventResponseContentPartDone      = "response.content_part.done"
	EventResponseAudioDelta           = "response.audio.delta"
	EventResponseAudioDone            = "response.audio.done"
	EventResponseAudioTranscriptDelta = "response.audio_transcript.delta"
	EventResponseAudioTranscriptDone  = "response.audio_transcript.done"
	EventResponseTextDelta            = "response.text.delta"
	EventResponseTextDone             = "response.text.done"
	EventResponseFunctionCallArgsDelta = "response.function_call_arguments.delta"
	EventResponseFunctionCallArgsDone  = "response.function_call_arguments.done"
	EventResponseDone                 = "response.done"
	EventError                        = "error"
)

// SessionCreatedPayload decodes session.created / session.updated.
type SessionCreatedPayload struct {
	Session struct {
		ID          string `json:"id"`
		Model       string `json:"model"`
		TurnDetection *struct {
			Type string `json:"type"`
		} `json:"turn_detection"`
	} `json:"session"`
}

// ResponseOutputItemAddedPayload decodes response.output_item.added,
// which is where a function_call item's name and call_id first appear.
type ResponseOutputItemAddedPayload struct {
	ResponseID string `json:"response_id"`
	Item       struct {
		ID     string `json:"id"`
		Type   string `json:"type"`
		Name   string `json:"name,omitempty"`
		CallID string `json:"call_id,omitempty"`
	} `json:"item"`
}

// ResponseAudioDeltaPayload decodes response.audio.delta.
type ResponseAudioDeltaPayload struct {
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Delta      string `json:"delta"` // base64 PCM
}

// ResponseFunctionCallArgsDeltaPayload decodes
// response.function_call_arguments.delta.
type ResponseFunctionCallArgsDeltaPayload struct {
	CallID string `json:"call_id"`
	Delta  string `json:"delta"`
}

// ResponseFunctionCallArgsDonePayload decodes
// response.function_call_arguments.done.
type ResponseFunctionCallArgsDonePayload struct {
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ResponseTextDeltaPayload decodes response.text.delta and
// response.audio_transcript.delta (same shape, different type field).
type ResponseTextDeltaPayload struct {
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Delta      string `json:"delta"`
}

// ResponseDonePayload decodes response.done.
type ResponseDonePayload struct {
	Response struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"response"`
}

// ErrorPayload decodes the error event's nested detail object.
type ErrorPayload struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the AI peer's structured error description.
type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Decode is a small convenience wrapper so handlers don't each repeat
// json.Unmarshal's error-wrapping boilerplate.
func Decode[T any](payload json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(payload, &v)
	return v, err
}
