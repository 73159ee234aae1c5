package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"

	"github.com/MrWong99/cadence/internal/analysis"
	"github.com/MrWong99/cadence/internal/observe"
	"github.com/MrWong99/cadence/pkg/audio"
	"github.com/MrWong99/cadence/pkg/prosody"
)

// Stream control messages. The client opens with "start", sends binary
// int16 LE PCM frames, and finishes with "stop". The server answers "start"
// with "ready" and "stop" with "summary"; failures produce "error" followed
// by a close frame.
const (
	msgStart   = "start"
	msgStop    = "stop"
	msgReady   = "ready"
	msgSummary = "summary"
	msgError   = "error"
)

// StreamMessage is a JSON text frame on /v1/stream.
type StreamMessage struct {
	Type       string           `json:"type"`
	SampleRate int              `json:"sample_rate,omitempty"`
	Channels   int              `json:"channels,omitempty"`
	StreamID   string           `json:"stream_id,omitempty"`
	Frames     int              `json:"frames,omitempty"`
	Summary    *prosody.Summary `json:"summary,omitempty"`
	Error      string           `json:"error,omitempty"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		// Accept has already written the HTTP error.
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(s.cfg.MaxUploadBytes)

	ctx := r.Context()
	log := observe.Logger(ctx)

	start, err := s.readControl(ctx, conn)
	if err != nil {
		log.Debug("stream handshake failed", "err", err)
		s.fail(ctx, conn, websocket.StatusPolicyViolation, err)
		return
	}
	if start.Type != msgStart {
		s.fail(ctx, conn, websocket.StatusPolicyViolation, fmt.Errorf("expected %q message, got %q", msgStart, start.Type))
		return
	}
	if start.Channels == 0 {
		start.Channels = 1
	}

	st, err := s.svc.OpenStream(ctx, audio.Format{SampleRate: start.SampleRate, Channels: start.Channels}, r.RemoteAddr)
	if err != nil {
		code := websocket.StatusPolicyViolation
		if errors.Is(err, analysis.ErrTooManyStreams) {
			code = websocket.StatusTryAgainLater
		}
		s.fail(ctx, conn, code, err)
		return
	}
	// Abrupt disconnects still release the stream slot.
	defer st.Close(context.WithoutCancel(ctx))

	id := st.Info().ID.String()
	if err := s.writeMessage(ctx, conn, StreamMessage{Type: msgReady, StreamID: id}); err != nil {
		return
	}

	for {
		readCtx, cancel := context.WithTimeout(ctx, s.cfg.StreamIdleTimeout)
		typ, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			if websocket.CloseStatus(err) == -1 {
				log.Debug("live stream read ended", "stream_id", id, "err", err)
			}
			return
		}

		switch typ {
		case websocket.MessageBinary:
			st.Write(data)
		case websocket.MessageText:
			var msg StreamMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				s.fail(ctx, conn, websocket.StatusInvalidFramePayloadData, fmt.Errorf("decode control message: %w", err))
				return
			}
			if msg.Type != msgStop {
				s.fail(ctx, conn, websocket.StatusPolicyViolation, fmt.Errorf("unexpected %q message", msg.Type))
				return
			}
			frames := st.Info().Frames
			summary := st.Close(ctx)
			if err := s.writeMessage(ctx, conn, StreamMessage{
				Type:     msgSummary,
				StreamID: id,
				Frames:   frames,
				Summary:  summary,
			}); err != nil {
				return
			}
			conn.Close(websocket.StatusNormalClosure, "done")
			return
		}
	}
}

func (s *Server) readControl(ctx context.Context, conn *websocket.Conn) (StreamMessage, error) {
	readCtx, cancel := context.WithTimeout(ctx, s.cfg.StreamIdleTimeout)
	defer cancel()

	var msg StreamMessage
	typ, data, err := conn.Read(readCtx)
	if err != nil {
		return msg, err
	}
	if typ != websocket.MessageText {
		return msg, errors.New("first message must be a JSON text frame")
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("decode control message: %w", err)
	}
	return msg, nil
}

func (s *Server) writeMessage(ctx context.Context, conn *websocket.Conn, msg StreamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, s.cfg.StreamIdleTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func (s *Server) fail(ctx context.Context, conn *websocket.Conn, code websocket.StatusCode, err error) {
	_ = s.writeMessage(ctx, conn, StreamMessage{Type: msgError, Error: err.Error()})
	conn.Close(code, truncateReason(err.Error()))
}

// Close reasons must fit in a 125 byte control frame.
func truncateReason(s string) string {
	if len(s) > 120 {
		return s[:120]
	}
	return s
}
