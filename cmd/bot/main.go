package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"seedhive.ai/internal/game"
	"seedhive.ai/internal/protocol"
	"seedhive.ai/internal/sim/model"
	"seedhive.ai/internal/sim/tuning"
)

func main() {
	var (
		url    = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name   = flag.String("name", "bot", "client name")
		seed   = flag.Int64("seed", time.Now().UnixNano(), "autopilot seed")
		steps  = flag.Int("steps", 200, "max directives to send")
		delay  = flag.Duration("delay", 200*time.Millisecond, "pause between directives")
		newRun = flag.Bool("new_run", false, "start a fresh run on connect")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		NewRun:          *newRun,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	ap := game.NewAutopilot(*seed)
	r := rand.New(rand.NewSource(*seed))
	tune := tuning.Defaults()
	sent := 0

	for sent < *steps {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Printf("read: %v", err)
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}

		var (
			st  model.State
			dil *protocol.DilemmaView
		)
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME session=%s cycle=%d phase=%s", w.SessionID, w.State.Cycle, w.State.Phase)
			st, dil = w.State, w.Dilemma

		case protocol.TypeReply:
			var rep protocol.ReplyMsg
			if err := json.Unmarshal(msg, &rep); err != nil {
				continue
			}
			logger.Printf("REPLY %s handled=%v cycle=%d phase=%s: %s", rep.ReqID, rep.Handled, rep.State.Cycle, rep.State.Phase, rep.Reply)
			if !rep.Handled {
				// Wait for the narration before acting again.
				continue
			}
			st, dil = rep.State, rep.Dilemma

		case protocol.TypeNarration:
			var n protocol.NarrationMsg
			if err := json.Unmarshal(msg, &n); err != nil {
				continue
			}
			logger.Printf("NARRATION %s applied=%v: %s", n.ReqID, n.Applied, n.Text)
			if n.State == nil {
				// Nothing changed; carry on with a plain advance.
				if err := send(conn, protocol.DirectiveMsg{Type: protocol.TypeDirective, ProtocolVersion: protocol.Version, ReqID: reqID(&sent), Text: "advance 1 cycle"}); err != nil {
					logger.Fatalf("send: %v", err)
				}
				continue
			}
			st = *n.State

		case protocol.TypeError:
			var e protocol.ErrorMsg
			_ = json.Unmarshal(msg, &e)
			logger.Printf("ERROR %s code=%s: %s", e.ReqID, e.Code, e.Message)
			if err := send(conn, protocol.DirectiveMsg{Type: protocol.TypeDirective, ProtocolVersion: protocol.Version, ReqID: reqID(&sent), Text: "status"}); err != nil {
				logger.Fatalf("send: %v", err)
			}
			continue

		default:
			continue
		}

		time.Sleep(*delay)
		var out any
		if dil != nil && len(dil.Options) > 0 {
			opt := dil.Options[r.Intn(len(dil.Options))]
			logger.Printf("dilemma %q -> %s", dil.Title, opt.Label)
			out = protocol.ChooseMsg{Type: protocol.TypeChoose, ProtocolVersion: protocol.Version, ReqID: reqID(&sent), DilemmaID: dil.ID, ChoiceID: opt.ID}
		} else {
			out = protocol.DirectiveMsg{Type: protocol.TypeDirective, ProtocolVersion: protocol.Version, ReqID: reqID(&sent), Text: ap.Directive(st, tune)}
		}
		if err := send(conn, out); err != nil {
			logger.Fatalf("send: %v", err)
		}
	}
}

func reqID(n *int) string {
	*n++
	return fmt.Sprintf("bot-%d", *n)
}

func send(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteJSON(v)
}
