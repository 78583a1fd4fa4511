package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"seedhive.ai/internal/game"
	"seedhive.ai/internal/protocol"
	"seedhive.ai/internal/sim/command"
	"seedhive.ai/internal/sim/dilemma"
)

type Server struct {
	sess         *game.Session
	tuningDigest string
	log          *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

func NewServer(sess *game.Session, tuningDigest string, logger *log.Logger) *Server {
	s := &Server{
		sess:         sess,
		tuningDigest: tuningDigest,
		log:          logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, ok := s.handshake(r.Context(), conn)
		if !ok {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		out := make(chan []byte, 32)
		notify := make(chan game.Narration, 8)

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Narrations arrive after the REPLY that deferred them.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case n := <-notify:
					s.send(ctx, out, protocol.NarrationMsg{
						Type:            protocol.TypeNarration,
						ProtocolVersion: protocol.Version,
						ReqID:           n.ReqID,
						Text:            n.Text,
						Applied:         n.Applied,
						State:           n.State,
					})
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(10 * time.Minute))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			s.send(ctx, out, s.dispatch(ctx, msg, notify))
		}
		s.log.Printf("session %s closed", sessionID)
	}
}

// dispatch handles one client message and returns the response to send.
func (s *Server) dispatch(ctx context.Context, msg []byte, notify chan<- game.Narration) any {
	base, err := protocol.Validate(msg)
	if err != nil {
		return protocol.NewError(base.ReqID, protocol.ErrProtoBadRequest, err.Error())
	}
	if base.ProtocolVersion != protocol.Version {
		return protocol.NewError(base.ReqID, protocol.ErrProtoVersion, fmt.Sprintf("unsupported protocol_version %q", base.ProtocolVersion))
	}

	var rep game.Reply
	switch base.Type {
	case protocol.TypeDirective:
		var m protocol.DirectiveMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return protocol.NewError(base.ReqID, protocol.ErrProtoBadRequest, err.Error())
		}
		rep, err = s.sess.Directive(ctx, m.ReqID, m.Text, notify)
	case protocol.TypeChoose:
		var m protocol.ChooseMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return protocol.NewError(base.ReqID, protocol.ErrProtoBadRequest, err.Error())
		}
		rep, err = s.sess.Choose(ctx, m.ReqID, m.DilemmaID, m.ChoiceID)
	default:
		return protocol.NewError(base.ReqID, protocol.ErrProtoBadRequest, "unexpected "+base.Type)
	}
	if err != nil {
		if errors.Is(err, game.ErrBusy) {
			return protocol.NewError(base.ReqID, protocol.ErrBusy, "session busy; retry")
		}
		return protocol.NewError(base.ReqID, protocol.ErrInternal, err.Error())
	}
	if rep.Code != "" {
		return protocol.NewError(base.ReqID, rep.Code, rep.Reply)
	}
	return replyMsg(rep)
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) (string, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", false
	}

	base, err := protocol.Validate(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", false
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", false
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", false
	}
	if hello.ClientName == "" {
		hello.ClientName = "client"
	}

	if hello.NewRun {
		if _, err := s.sess.NewRun(ctx, ""); err != nil {
			_ = writeJSON(conn, protocol.NewError("", protocol.ErrInternal, err.Error()))
			return "", false
		}
	}
	v, err := s.sess.View(ctx)
	if err != nil {
		_ = writeJSON(conn, protocol.NewError("", protocol.ErrInternal, err.Error()))
		return "", false
	}

	id := fmt.Sprintf("S%d", s.nextID.Add(1))
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       id,
		TuningDigest:    s.tuningDigest,
		State:           v.State,
		Dilemma:         dilemmaView(v.Pending),
	}
	if r := v.Returning; r.Completions > 0 {
		welcome.Returning = &protocol.Returning{
			Completions:     r.Completions,
			LastPhase:       r.LastPhase,
			LastReflection:  r.LastReflection,
			WorldsSeeded:    r.WorldsSeeded,
			DecisionPattern: r.DecisionPattern,
		}
	}
	if err := writeJSON(conn, welcome); err != nil {
		return "", false
	}
	s.log.Printf("session %s opened client=%s cycle=%d", id, hello.ClientName, v.State.Cycle)
	return id, true
}

func (s *Server) send(ctx context.Context, out chan<- []byte, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Printf("marshal %T: %v", v, err)
		return
	}
	select {
	case out <- b:
	case <-ctx.Done():
	}
}

func replyMsg(rep game.Reply) protocol.ReplyMsg {
	return protocol.ReplyMsg{
		Type:            protocol.TypeReply,
		ProtocolVersion: protocol.Version,
		ReqID:           rep.ReqID,
		Handled:         rep.Handled,
		Reply:           rep.Reply,
		Logs:            logLines(rep.Logs),
		State:           rep.State,
		Dilemma:         dilemmaView(rep.Pending),
	}
}

func logLines(in []command.LogEntry) []protocol.LogLine {
	out := make([]protocol.LogLine, 0, len(in))
	for _, l := range in {
		out = append(out, protocol.LogLine{Type: l.Type, Text: l.Text})
	}
	return out
}

func dilemmaView(d *dilemma.Dilemma) *protocol.DilemmaView {
	if d == nil {
		return nil
	}
	v := &protocol.DilemmaView{
		ID:          d.ID,
		Kind:        string(d.Kind),
		Cycle:       d.Cycle,
		Title:       d.Title,
		Description: d.Description,
		Options:     make([]protocol.OptionView, 0, len(d.Options)),
	}
	for _, o := range d.Options {
		v.Options = append(v.Options, protocol.OptionView{ID: o.ID, Label: o.Label, Description: o.Description})
	}
	return v
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
