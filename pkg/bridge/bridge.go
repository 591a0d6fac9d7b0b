// Package bridge implements the Event Router (C7): the core of the
// system. One Bridge owns exactly one Call, exactly one telephony
// socket, and exactly one AI-peer socket, and runs a single goroutine
// that merges events from both sides plus tool-call completions into
// one dispatch loop — "coroutine soup" replaced by one task per Call
// with explicit channels, per the teacher's own per-connection-session
// pattern in signalwire-audio-bridge.go generalized beyond one dialect.
package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/birddigital/voicebridge/pkg/audiocodec"
	"github.com/birddigital/voicebridge/pkg/audiostream"
	"github.com/birddigital/voicebridge/pkg/call"
	"github.com/birddigital/voicebridge/pkg/realtime"
	"github.com/birddigital/voicebridge/pkg/session"
	"github.com/birddigital/voicebridge/pkg/tools"
	"github.com/birddigital/voicebridge/pkg/wireformat"
)

// TelephonyConn is the minimal surface Bridge needs from a telephony
// websocket connection; *gorilla/websocket.Conn satisfies it directly,
// and tests supply a fake.
type TelephonyConn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

const websocketTextMessage = 1 // matches gorilla/websocket.TextMessage's wire value

// aiEvent is what the realtime.Client's EventHandler callbacks push onto
// the Bridge's merged dispatch channel.
type aiEvent struct {
	kind    string
	payload json.RawMessage
}

// Bridge orchestrates one Call from accept to close.
type Bridge struct {
	ctx  ServerContext
	Call *call.Call

	codec     wireformat.Codec
	telephony TelephonyConn
	ai        *realtime.Client

	machine    *session.Machine
	streams    *audiostream.Manager
	dispatcher *tools.Dispatcher

	telephonyEvents chan wireformat.Event
	aiEvents        chan aiEvent
	actions         chan wireformat.Action

	writeMu sync.Mutex

	lastRateLimitAt time.Time

	// telephonyID is the conversation/session identifier echoed back to
	// the telephony peer on every outbound frame, captured from the
	// EventSessionStart/Resume that opened the Call.
	telephonyID string
}

// Closed reports whether this Bridge's Call has reached the terminal
// session state, satisfying pkg/registry.Entry so the Session Registry
// can sweep it without importing pkg/bridge's internals.
func (b *Bridge) Closed() bool {
	return b.machine.IsTerminal()
}

// New constructs a Bridge for one Call. It does not connect to the AI
// peer or start any goroutines; call Run to do that.
func New(srvCtx ServerContext, c *call.Call, codec wireformat.Codec, telephonyConn TelephonyConn, toolRegistry *tools.Registry) *Bridge {
	srvCtx = srvCtx.WithDefaults()
	return &Bridge{
		ctx:             srvCtx,
		Call:            c,
		codec:           codec,
		telephony:       telephonyConn,
		machine:         session.New(),
		streams:         audiostream.NewManager(c.Config.InputFormat, c.Config.OutputFormat),
		dispatcher:      tools.NewDispatcher(toolRegistry),
		telephonyEvents: make(chan wireformat.Event, 64),
		aiEvents:        make(chan aiEvent, 64),
		actions:         make(chan wireformat.Action, 64),
	}
}

// Run drives the Call to completion and returns the typed Outcome. It
// blocks until the Call ends, ctx is cancelled, or an unrecoverable
// error occurs.
func (b *Bridge) Run(ctx context.Context) Outcome {
	if err := b.machine.Accept(); err != nil {
		return protocolError("session accept", err)
	}

	ai, err := realtime.Dial(ctx, b.ctx.AIEndpoint, b.ctx.AIAPIKey, b.Call.Config, b.Call.Log)
	if err != nil {
		return peerDisconnected("ai peer dial", err)
	}
	b.ai = ai
	defer b.ai.Close()

	b.registerAIHandlers()
	if err := b.machine.Activate(); err != nil {
		return protocolError("session activate", err)
	}

	aiCtx, cancelAI := context.WithCancel(ctx)
	defer cancelAI()

	aiRunErr := make(chan error, 1)
	go func() { aiRunErr <- b.ai.Run(aiCtx) }()
	go b.readTelephonyLoop()
	go b.writeTelephonyLoop(ctx)

	defer func() {
		_ = b.machine.End()
		_ = b.machine.Close()
		b.ctx.Executor.Cancel(b.Call.ID + ":")
	}()

	for {
		select {
		case <-ctx.Done():
			return ok()

		case err := <-aiRunErr:
			if err != nil {
				return peerDisconnected("ai peer read loop", err)
			}
			return ok()

		case ev, open := <-b.telephonyEvents:
			if !open {
				return peerDisconnected("telephony socket closed", nil)
			}
			if outcome, done := b.handleTelephonyEvent(ctx, ev); done {
				return outcome
			}

		case ev := <-b.aiEvents:
			if outcome, done := b.handleAIEvent(ctx, ev); done {
				return outcome
			}
		}
	}
}

func (b *Bridge) readTelephonyLoop() {
	defer close(b.telephonyEvents)
	for {
		_, data, err := b.telephony.ReadMessage()
		if err != nil {
			return
		}
		event, err := b.codec.Decode(data)
		if err != nil {
			b.Call.Log.Warn("bridge: undecodable telephony frame", "error", err)
			continue
		}
		b.telephonyEvents <- event
	}
}

func (b *Bridge) writeTelephonyLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case action, open := <-b.actions:
			if !open {
				return
			}
			data, err := b.codec.Encode(action)
			if err != nil {
				b.Call.Log.Warn("bridge: failed to encode outbound action", "error", err)
				continue
			}
			if data == nil {
				continue
			}
			b.writeMu.Lock()
			err = b.telephony.WriteMessage(websocketTextMessage, data)
			b.writeMu.Unlock()
			if err != nil {
				b.Call.Log.Warn("bridge: failed to write telephony frame", "error", err)
				return
			}
		}
	}
}

func (b *Bridge) send(a wireformat.Action) {
	select {
	case b.actions <- a:
	default:
		b.Call.Log.Warn("bridge: outbound action queue full, dropping", "kind", a.Kind)
	}
}

func (b *Bridge) handleTelephonyEvent(ctx context.Context, ev wireformat.Event) (Outcome, bool) {
	switch ev.Kind {
	case wireformat.EventSessionStart:
		return b.handleSessionStart(ctx, ev)

	case wireformat.EventSessionResume:
		b.telephonyID = ev.StreamID
		b.send(wireformat.Action{Kind: wireformat.ActionAccept, StreamID: ev.StreamID})
		return Outcome{}, false

	case wireformat.EventUserStreamStart:
		b.bargeIn(ctx)
		b.streams.BeginTurn()
		return Outcome{}, false

	case wireformat.EventAudioChunk:
		return b.handleInboundAudio(ctx, ev)

	case wireformat.EventUserStreamStop:
		return b.handleUserStreamStop(ctx)

	case wireformat.EventSessionEnd:
		return ok(), true

	case wireformat.EventControl:
		b.Call.Log.Debug("bridge: control event", "tag", ev.ControlTag)
		return Outcome{}, false

	default:
		return Outcome{}, false
	}
}

// handleSessionStart negotiates the media format per §6.3, stores the
// greeting flag, accepts or rejects the session, and seeds a greeting
// turn when the telephony peer asked the bridge to speak first.
func (b *Bridge) handleSessionStart(ctx context.Context, ev wireformat.Event) (Outcome, bool) {
	b.telephonyID = ev.StreamID
	b.Call.CallerID = ev.CallerID
	b.Call.CalledID = ev.CalledID
	b.Call.ExpectsGreeting = ev.ExpectsGreeting

	format := ev.Format
	if ev.SupportedFormats != nil {
		if len(ev.SupportedFormats) == 0 {
			b.send(wireformat.Action{
				Kind:     wireformat.ActionSessionReject,
				StreamID: ev.StreamID,
				Text:     "no mutually supported media format",
			})
			return protocolError("media format negotiation", fmt.Errorf("empty intersection with peer's supportedMediaFormats")), true
		}
		format = ev.SupportedFormats[0]
	}
	b.Call.Config.InputFormat = format
	b.Call.Config.OutputFormat = format

	b.send(wireformat.Action{Kind: wireformat.ActionAccept, StreamID: ev.StreamID, Format: format})

	if b.Call.ExpectsGreeting {
		if err := b.ai.CreateTextContext(ctx, "user", "Greet the caller briefly and ask how you can help."); err != nil {
			b.Call.Log.Warn("bridge: failed to seed greeting context", "error", err)
			return Outcome{}, false
		}
		if err := b.ai.CreateResponse(ctx); err != nil {
			b.Call.Log.Warn("bridge: failed to request greeting response", "error", err)
		}
	}
	return Outcome{}, false
}

// bargeIn cancels any live AI output stream, telling the telephony peer
// to stop playback immediately and asking the AI peer to cancel its
// response. It also cancels executor jobs keyed under the stream's
// response id; tool calls are keyed by their call_id and are awaited by
// the dispatch loop before the next event is handled, so none is in
// flight here and none is cancelled. Shared by the explicit
// UserStreamStart path (dialect A) and the implicit barge-in-on-chunk
// path (continuous-stream dialects).
func (b *Bridge) bargeIn(ctx context.Context) {
	out := b.streams.CurrentOutput()
	if out == nil || out.Done || out.Cancelled {
		return
	}
	streamID, cancelled := b.streams.CancelOutput()
	if !cancelled {
		return
	}
	b.send(wireformat.Action{Kind: wireformat.ActionAudioStop, StreamID: b.telephonyID, OutputID: streamID})
	if err := b.ai.CancelResponse(ctx); err != nil {
		b.Call.Log.Warn("bridge: failed to cancel ai response on barge-in", "error", err)
	}
	b.ctx.Executor.Cancel(b.Call.ID + ":" + out.ResponseID)
}

// handleUserStreamStop commits whatever input is buffered for the turn
// that just ended (padding to the minimum commit duration if short),
// per §4.5. A stop with no matching prior start is a no-op.
func (b *Bridge) handleUserStreamStop(ctx context.Context) (Outcome, bool) {
	committed, active := b.streams.CommitIfActive()
	if !active {
		return Outcome{}, false
	}
	return b.sendCommittedAudio(ctx, committed)
}

func (b *Bridge) handleInboundAudio(ctx context.Context, ev wireformat.Event) (Outcome, bool) {
	pcm := ev.Audio
	if ev.Format.Encoding == "mulaw" {
		pcm = audiocodec.MulawToLinear(ev.Audio)
	}

	// Caller audio arriving mid-playback is barge-in for dialects with
	// no discrete utterance framing (they never send UserStreamStart).
	b.bargeIn(ctx)

	b.streams.AppendInput(pcm)
	b.Call.BytesIn += int64(len(pcm))

	if b.streams.ReadyToCommit() {
		return b.sendCommittedAudio(ctx, b.streams.DrainForCommit())
	}
	return Outcome{}, false
}

// sendCommittedAudio appends committed input audio to the AI peer's
// input buffer, commits it, and requests a response if the AI peer
// isn't doing its own server-side turn detection.
func (b *Bridge) sendCommittedAudio(ctx context.Context, committed []byte) (Outcome, bool) {
	for len(committed) > 0 {
		chunk := committed
		if max := b.ai.MaxAppendChunkBytes(); max > 0 && len(chunk) > max {
			chunk = chunk[:max]
		}
		if err := b.ai.AppendInputAudio(ctx, chunk); err != nil {
			return peerDisconnected("append input audio", err), true
		}
		committed = committed[len(chunk):]
	}
	if err := b.ai.CommitInputAudio(ctx); err != nil {
		return peerDisconnected("commit input audio", err), true
	}
	if !b.Call.Config.VADEnabled {
		if err := b.ai.CreateResponse(ctx); err != nil {
			return peerDisconnected("create response", err), true
		}
	}
	return Outcome{}, false
}

func (b *Bridge) registerAIHandlers() {
	push := func(kind string) realtime.EventHandler {
		return func(k string, payload json.RawMessage) {
			select {
			case b.aiEvents <- aiEvent{kind: k, payload: payload}:
			default:
			}
		}
	}
	for _, kind := range []string{
		realtime.EventSessionCreated,
		realtime.EventSessionUpdated,
		realtime.EventConversationItemCreated,
		realtime.EventInputAudioBufferCommitted,
		realtime.EventInputAudioBufferSpeechStart,
		realtime.EventInputAudioBufferSpeechStop,
		realtime.EventResponseCreated,
		realtime.EventResponseOutputItemAdded,
		realtime.EventResponseContentPartAdded,
		realtime.EventResponseContentPartDone,
		realtime.EventResponseAudioDelta,
		realtime.EventResponseAudioDone,
		realtime.EventResponseAudioTranscriptDelta,
		realtime.EventResponseAudioTranscriptDone,
		realtime.EventResponseTextDelta,
		realtime.EventResponseTextDone,
		realtime.EventResponseFunctionCallArgsDelta,
		realtime.EventResponseFunctionCallArgsDone,
		realtime.EventResponseDone,
		realtime.EventError,
	} {
		b.ai.OnEvent(kind, push(kind))
	}
}

func (b *Bridge) handleAIEvent(ctx context.Context, ev aiEvent) (Outcome, bool) {
	switch ev.kind {
	case realtime.EventResponseOutputItemAdded:
		p, err := realtime.Decode[realtime.ResponseOutputItemAddedPayload](ev.payload)
		if err != nil {
			return protocolError("decode output_item.added", err), true
		}
		if p.Item.Type == "function_call" {
			b.dispatcher.BeginCall(p.Item.CallID, p.Item.ID, p.Item.Name)
		}
		return Outcome{}, false

	case realtime.EventResponseAudioDelta:
		p, err := realtime.Decode[realtime.ResponseAudioDeltaPayload](ev.payload)
		if err != nil {
			return protocolError("decode audio.delta", err), true
		}
		return b.handleOutboundAudioDelta(p)

	case realtime.EventResponseAudioDone:
		if out := b.streams.CurrentOutput(); out != nil && !out.Done && !out.Cancelled {
			b.streams.FinishOutput(out.ID)
			b.send(wireformat.Action{Kind: wireformat.ActionAudioStop, StreamID: b.telephonyID, OutputID: out.ID})
		}
		return Outcome{}, false

	case realtime.EventResponseAudioTranscriptDelta, realtime.EventResponseTextDelta:
		p, err := realtime.Decode[realtime.ResponseTextDeltaPayload](ev.payload)
		if err != nil {
			return protocolError("decode transcript delta", err), true
		}
		b.send(wireformat.Action{Kind: wireformat.ActionHypothesis, Text: p.Delta, Final: false})
		return Outcome{}, false

	case realtime.EventResponseAudioTranscriptDone, realtime.EventResponseTextDone:
		b.send(wireformat.Action{Kind: wireformat.ActionHypothesis, Final: true})
		return Outcome{}, false

	case realtime.EventResponseFunctionCallArgsDelta:
		p, err := realtime.Decode[realtime.ResponseFunctionCallArgsDeltaPayload](ev.payload)
		if err != nil {
			return protocolError("decode function_call_arguments.delta", err), true
		}
		b.dispatcher.AppendArgs(p.CallID, p.Delta)
		return Outcome{}, false

	case realtime.EventResponseFunctionCallArgsDone:
		p, err := realtime.Decode[realtime.ResponseFunctionCallArgsDonePayload](ev.payload)
		if err != nil {
			return protocolError("decode function_call_arguments.done", err), true
		}
		pending := b.dispatcher.Complete(p.CallID, p.Name, p.Arguments)
		return b.runTool(ctx, pending)

	case realtime.EventError:
		p, err := realtime.Decode[realtime.ErrorPayload](ev.payload)
		if err != nil {
			return protocolError("decode error event", err), true
		}
		return b.handleAIError(ctx, p.Error)

	default:
		return Outcome{}, false
	}
}

func (b *Bridge) handleOutboundAudioDelta(p realtime.ResponseAudioDeltaPayload) (Outcome, bool) {
	out := b.streams.CurrentOutput()
	if out != nil && (out.Done || out.Cancelled) {
		if out.Cancelled && out.ResponseID == p.ResponseID {
			// Late audio for a barged-in response is dropped, not played.
			return Outcome{}, false
		}
		out = nil
	}
	if out == nil {
		started, err := b.streams.StartOutput(p.ResponseID)
		if err != nil {
			return Outcome{}, false
		}
		out = started
		b.send(wireformat.Action{
			Kind:     wireformat.ActionAudioStart,
			StreamID: b.telephonyID,
			OutputID: out.ID,
			Format:   b.Call.Config.OutputFormat,
		})
	}

	pcm, err := base64.StdEncoding.DecodeString(p.Delta)
	if err != nil {
		return protocolError("decode audio delta payload", err), true
	}

	if err := b.streams.AppendOutput(out.ID, pcm); err != nil {
		return Outcome{}, false
	}

	wireAudio := pcm
	if b.codec.PreferredOutboundFormat().Encoding == "mulaw" {
		encoded, err := audiocodec.LinearToMulaw(pcm)
		if err != nil {
			b.Call.Log.Warn("bridge: failed to encode outbound audio", "error", err)
			return Outcome{}, false
		}
		wireAudio = encoded
	}

	b.Call.BytesOut += int64(len(wireAudio))
	// Split to the codec's per-frame cap on whole-sample boundaries.
	sampleBytes := 2
	if b.codec.PreferredOutboundFormat().Encoding == "mulaw" {
		sampleBytes = 1
	}
	maxBytes := b.codec.MaxChunkBytes() / sampleBytes * sampleBytes
	for len(wireAudio) > 0 {
		chunk := wireAudio
		if maxBytes > 0 && len(chunk) > maxBytes {
			chunk = chunk[:maxBytes]
		}
		b.send(wireformat.Action{Kind: wireformat.ActionAudioChunk, StreamID: b.telephonyID, OutputID: out.ID, Audio: chunk})
		wireAudio = wireAudio[len(chunk):]
	}
	return Outcome{}, false
}

func (b *Bridge) runTool(ctx context.Context, pending *call.PendingToolCall) (Outcome, bool) {
	key := b.Call.ID + ":" + pending.CallID
	b.ctx.Executor.Run(ctx, key, b.ctx.ToolCallTimeout, func(toolCtx context.Context) (any, error) {
		return b.dispatcher.Invoke(toolCtx, pending)
	})

	res, err := b.ctx.Executor.Await(ctx, key)
	b.dispatcher.Forget(pending.CallID)
	if err != nil {
		return Outcome{}, false
	}
	if res.Err != nil {
		resultJSON, _ := json.Marshal(map[string]string{"error": res.Err.Error()})
		if sendErr := b.ai.SendFunctionResult(ctx, pending.CallID, string(resultJSON)); sendErr != nil {
			return toolFailure(pending.Name, sendErr), true
		}
		return Outcome{}, false
	}

	resultJSON, err := json.Marshal(res.Value)
	if err != nil {
		resultJSON = []byte(fmt.Sprintf("%v", res.Value))
	}
	if err := b.ai.SendFunctionResult(ctx, pending.CallID, string(resultJSON)); err != nil {
		return peerDisconnected("send function result", err), true
	}
	return Outcome{}, false
}

func (b *Bridge) handleAIError(ctx context.Context, detail realtime.ErrorDetail) (Outcome, bool) {
	if detail.Type == "rate_limit_error" || detail.Code == "rate_limit_exceeded" {
		since := time.Since(b.lastRateLimitAt)
		if since < b.ctx.RateLimitCooldown {
			time.Sleep(b.ctx.RateLimitCooldown - since)
		}
		b.lastRateLimitAt = time.Now()
		b.Call.Log.Warn("bridge: ai peer rate limited, backed off", "cooldown", b.ctx.RateLimitCooldown)
		return Outcome{}, false
	}
	b.Call.Log.Error("bridge: ai peer error", "type", detail.Type, "code", detail.Code, "message", detail.Message)
	return Outcome{}, false
}
