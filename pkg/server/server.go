// Package server implements the Server Front-End (C8): the HTTP
// listener that accepts telephony peer connections, one websocket route
// per recognized wire dialect, plus dialect B's call-setup webhook.
// Adapted from the teacher's call-handlers.go and
// signalwire-audio-bridge.go, generalized from a single SignalWire
// dialect to the full dialect-keyed routing table.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/birddigital/voicebridge/pkg/bridge"
	"github.com/birddigital/voicebridge/pkg/call"
	"github.com/birddigital/voicebridge/pkg/registry"
	"github.com/birddigital/voicebridge/pkg/tools"
	"github.com/birddigital/voicebridge/pkg/wireformat"
	"github.com/birddigital/voicebridge/pkg/wireformat/audiocodes"
	"github.com/birddigital/voicebridge/pkg/wireformat/genesys"
	"github.com/birddigital/voicebridge/pkg/wireformat/twilio"
)

// upgrader mirrors the teacher's package-level signalWireUpgrader:
// generous buffers, origin checking left to a reverse proxy in front of
// this service rather than duplicated here.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// SessionConfigFactory builds the per-Call SessionConfig sent to the AI
// peer, given the caller/called ids the wire dialect supplied. Servers
// typically close over a fixed model/instructions/tool set and vary
// only caller-specific fields (or none at all).
type SessionConfigFactory func(callerID, calledID string) call.SessionConfig

// Server wires dialect codecs, the tool registry, and the bridge
// ServerContext into a net/http handler per dialect.
type Server struct {
	BridgeCtx    bridge.ServerContext
	Registry     *registry.Registry
	Tools        *tools.Registry
	SessionCfg   SessionConfigFactory
	PublicWSHost string // host:port used to render dialect B's TwiML <Stream> URL
}

// Mux builds the http.ServeMux with one path per supported dialect, plus
// dialect B's call-setup webhook, matching the teacher's RegisterRoutes
// shape.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/voicebridge/audiocodes", s.handleDialect(audiocodes.New()))
	mux.HandleFunc("/voicebridge/twilio", s.handleDialect(twilio.New()))
	mux.HandleFunc("/voicebridge/genesys", s.handleDialect(genesys.New()))
	mux.HandleFunc("/voicebridge/twilio/incoming", s.handleTwilioIncoming)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleTwilioIncoming renders the <Start><Stream> document that points
// dialect B's telephony infrastructure at the websocket route, directly
// adapted from the teacher's HandleIncomingCall.
func (s *Server) handleTwilioIncoming(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	wsURL := fmt.Sprintf("wss://%s/voicebridge/twilio", s.PublicWSHost)
	doc, err := twilio.RenderTwiMLStream(wsURL)
	if err != nil {
		http.Error(w, "failed to render call-setup document", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write(doc)
}

// handleDialect returns an http.HandlerFunc that upgrades the request to
// a websocket, constructs a Call and a Bridge bound to codec, and runs
// it to completion.
func (s *Server) handleDialect(codec wireformat.Codec) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.BridgeCtx.Logger.Warn("server: websocket upgrade failed", "error", err, "dialect", codec.Name())
			return
		}

		c := call.New(codec.Name(), "", "", s.BridgeCtx.Logger)
		if s.SessionCfg != nil {
			c.Config = s.SessionCfg("", "")
		}
		c.Config.InputFormat = codec.RequiredInboundFormat()
		c.Config.OutputFormat = codec.PreferredOutboundFormat()

		br := bridge.New(s.BridgeCtx, c, codec, conn, s.Tools)
		s.Registry.Put(c.ID, br)

		c.Log.Info("server: call accepted", "dialect", codec.Name())

		outcome := br.Run(r.Context())

		c.EndedAt = time.Now()
		s.Registry.Delete(c.ID)
		c.Log.Info("server: call ended", "outcome", outcome.Kind.String(), "duration", c.Duration())

		_ = conn.Close()
	}
}
