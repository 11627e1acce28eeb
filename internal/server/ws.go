package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/overtone-ai/overtone/internal/channel"
	"github.com/overtone-ai/overtone/internal/pipeline"
)

// inboundMessage is the envelope for text frames received on the signaling
// socket.
type inboundMessage struct {
	Type          string `json:"type"`
	SDP           string `json:"sdp,omitempty"`
	Candidate     string `json:"candidate,omitempty"`
	SDPMid        string `json:"sdpMid,omitempty"`
	SDPMLineIndex int    `json:"sdpMLineIndex,omitempty"`
	Content       string `json:"content,omitempty"`
}

// outboundMessage is the envelope for text frames sent on the signaling
// socket.
type outboundMessage struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId,omitempty"`
	SDP       string         `json:"sdp,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// messageSender delivers outbound envelopes to the client.
type messageSender interface {
	send(ctx context.Context, msg outboundMessage) error
}

// wsConn serializes writes to a signaling socket. Turn forwarders emit
// events from their own goroutine while the read loop may answer signaling
// messages concurrently.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(ctx context.Context, msg outboundMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, payload)
}

// signalingSession is the per-connection state of one inline session. Its
// methods are called from the connection's read loop only; turn forwarders
// run in their own goroutines and touch nothing but out and logger.
type signalingSession struct {
	srv       *Server
	out       messageSender
	logger    *slog.Logger
	sessionID string
	acc       pipeline.SpeechAccumulator

	turns sync.WaitGroup
	// prevDelivered is closed once the previous turn's events have all been
	// written out. The next turn's forwarder waits on it, so two turns can
	// never interleave on the wire even though the pipeline accepts turn N+1
	// as soon as turn N's events are buffered.
	prevDelivered chan struct{}
}

// handleSignaling runs one full-duplex voice session over a WebSocket.
// Binary frames are audio and feed the segmenter; text frames carry
// signaling and direct text input. The session is created on accept and
// torn down when the socket closes, whatever the reason.
func (s *Server) handleSignaling(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("server: websocket accept failed", "error", err)
		return
	}

	ctx := r.Context()
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = "anonymous"
	}

	sessionID, err := s.strategy.CreateSession(ctx, clientID)
	if err != nil {
		s.logger.Error("server: create session failed", "client_id", clientID, "error", err)
		conn.Close(websocket.StatusInternalError, "session setup failed")
		return
	}
	s.trackSession(ctx, sessionID)
	defer s.teardown(context.WithoutCancel(ctx), sessionID)

	ss := &signalingSession{
		srv:       s,
		out:       &wsConn{conn: conn},
		logger:    s.logger.With("session_id", sessionID),
		sessionID: sessionID,
	}
	defer ss.turns.Wait()

	if err := ss.out.send(ctx, outboundMessage{Type: "connected", SessionID: sessionID}); err != nil {
		ss.logger.Warn("server: greeting failed", "error", err)
		conn.Close(websocket.StatusInternalError, "write failed")
		return
	}

	for {
		kind, payload, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				ss.logger.Debug("server: signaling socket closed")
			} else {
				ss.logger.Warn("server: signaling socket error", "error", err)
			}
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}

		switch kind {
		case websocket.MessageBinary:
			ss.handleAudioFrame(ctx, payload)
		case websocket.MessageText:
			var msg inboundMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				ss.sendError(ctx, "malformed message")
				continue
			}
			ss.handleMessage(ctx, msg)
		}
	}
}

func (ss *signalingSession) handleAudioFrame(ctx context.Context, frame []byte) {
	event := ss.srv.segmenter.Detect(ctx, ss.sessionID, frame)
	if utterance, done := ss.acc.Feed(event, frame); done {
		ss.startTurn(ctx, func() (<-chan pipeline.Event, error) {
			return ss.srv.pipe.ProcessUtterance(ctx, ss.sessionID, utterance)
		})
	}
}

func (ss *signalingSession) handleMessage(ctx context.Context, msg inboundMessage) {
	switch msg.Type {
	case "offer":
		answer, err := ss.srv.strategy.Negotiate(ctx, ss.sessionID, msg.SDP)
		if err != nil {
			ss.logger.Error("server: negotiate failed", "error", err)
			ss.sendError(ctx, "negotiation failed")
			return
		}
		if err := ss.out.send(ctx, outboundMessage{Type: "answer", SDP: answer}); err != nil {
			ss.logger.Warn("server: answer write failed", "error", err)
		}
	case "ice-candidate":
		cand := channel.Candidate{
			Candidate:     msg.Candidate,
			SDPMid:        msg.SDPMid,
			SDPMLineIndex: msg.SDPMLineIndex,
		}
		if err := ss.srv.strategy.AddRemoteCandidate(ctx, ss.sessionID, cand); err != nil {
			ss.logger.Warn("server: add candidate failed", "error", err)
		}
	case "text":
		if msg.Content == "" {
			ss.sendError(ctx, "empty text input")
			return
		}
		ss.startTurn(ctx, func() (<-chan pipeline.Event, error) {
			return ss.srv.pipe.ProcessText(ctx, ss.sessionID, msg.Content)
		})
	default:
		ss.logger.Warn("server: unknown signaling message", "type", msg.Type)
	}
}

// startTurn begins a pipeline turn and forwards its events in the
// background. A busy session drops the input silently; the pipeline has
// already counted the drop. Forwarders are chained so a new turn's events
// go out only after the previous turn is fully delivered.
func (ss *signalingSession) startTurn(ctx context.Context, start func() (<-chan pipeline.Event, error)) {
	events, err := start()
	if err != nil {
		if !errors.Is(err, pipeline.ErrSessionBusy) {
			ss.logger.Error("server: turn start failed", "error", err)
			ss.sendError(ctx, "processing failed")
		}
		return
	}

	prev := ss.prevDelivered
	delivered := make(chan struct{})
	ss.prevDelivered = delivered
	ss.turns.Add(1)
	go func() {
		defer ss.turns.Done()
		defer close(delivered)
		if prev != nil {
			// The previous forwarder always closes its channel on exit,
			// including on write failure, so this cannot block forever.
			<-prev
		}
		ss.forwardEvents(ctx, events)
	}()
}

// forwardEvents maps pipeline events onto the socket's wire envelopes.
func (ss *signalingSession) forwardEvents(ctx context.Context, events <-chan pipeline.Event) {
	for ev := range events {
		var msg outboundMessage
		switch ev.Kind {
		case pipeline.EventRecognizedText:
			msg = outboundMessage{Type: "asr_result", Data: map[string]any{"text": ev.Text}}
		case pipeline.EventGeneratedText:
			msg = outboundMessage{Type: "llm_response", Data: map[string]any{"text": ev.Text}}
		case pipeline.EventSynthesizedAudio:
			msg = outboundMessage{Type: "tts_audio", Data: map[string]any{
				"audio": base64.StdEncoding.EncodeToString(ev.Audio),
			}}
		case pipeline.EventError:
			// The underlying error stays in the log; the client gets a
			// stage-level message without internal detail.
			ss.logger.Warn("server: turn failed", "stage", ev.Stage, "error", ev.Err)
			msg = outboundMessage{Type: "error", Message: stageErrorMessage(ev.Stage)}
		default:
			continue
		}
		if err := ss.out.send(ctx, msg); err != nil {
			ss.logger.Warn("server: event write failed", "kind", ev.Kind.String(), "error", err)
			return
		}
	}
}

func (ss *signalingSession) sendError(ctx context.Context, message string) {
	if err := ss.out.send(ctx, outboundMessage{Type: "error", Message: message}); err != nil {
		ss.logger.Warn("server: error write failed", "error", err)
	}
}

// stageErrorMessage maps a failed pipeline stage to the client-facing error
// text.
func stageErrorMessage(stage string) string {
	switch stage {
	case "recognize":
		return "speech recognition failed"
	case "generate":
		return "response generation failed"
	case "synthesize":
		return "speech synthesis failed"
	default:
		return "processing failed"
	}
}
