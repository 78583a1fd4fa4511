package protocol_test

import (
	"encoding/json"
	"testing"

	"seedhive.ai/internal/protocol"
	"seedhive.ai/internal/sim/colony"
	"seedhive.ai/internal/sim/model"
	"seedhive.ai/internal/sim/tuning"
)

func TestValidate_Samples(t *testing.T) {
	ok := []string{
		`{"type":"HELLO","protocol_version":"1.0","client_name":"term","new_run":true}`,
		`{"type":"DIRECTIVE","protocol_version":"1.0","req_id":"r1","text":"advance 3 cycles"}`,
		`{"type":"CHOOSE","protocol_version":"1.0","req_id":"r2","dilemma_id":"native_life-12","choice_id":"avoid"}`,
		`{"type":"ERROR","protocol_version":"1.0","code":"E_NO_PENDING","message":"no dilemma"}`,
	}
	for _, s := range ok {
		if _, err := protocol.Validate([]byte(s)); err != nil {
			t.Fatalf("validate %s: %v", s, err)
		}
	}
}

func TestValidate_Rejects(t *testing.T) {
	bad := []string{
		`not json`,
		`{"type":"OBS","protocol_version":"1.0"}`,
		`{"type":"DIRECTIVE","protocol_version":"1.0","req_id":"r1"}`,
		`{"type":"DIRECTIVE","protocol_version":"1.0","req_id":"r1","text":""}`,
		`{"type":"CHOOSE","protocol_version":"1.0","req_id":"r2","dilemma_id":"x"}`,
		`{"type":"HELLO","protocol_version":"1.0","new_run":"yes"}`,
	}
	for _, s := range bad {
		if _, err := protocol.Validate([]byte(s)); err == nil {
			t.Fatalf("expected rejection: %s", s)
		}
	}
}

func TestValidate_ServerMessages(t *testing.T) {
	st := colony.New(model.DefaultDifficulty(), tuning.Defaults())
	reply := protocol.ReplyMsg{
		Type:            protocol.TypeReply,
		ProtocolVersion: protocol.Version,
		ReqID:           "r1",
		Handled:         true,
		Reply:           "ok",
		Logs:            []protocol.LogLine{{Type: "event", Text: "cycle 2"}},
		State:           st,
		Dilemma: &protocol.DilemmaView{
			ID: "existential-30", Kind: "existential", Title: "What Are We?",
			Options: []protocol.OptionView{{ID: "embrace", Label: "Embrace"}},
		},
	}
	b, _ := json.Marshal(reply)
	if _, err := protocol.Validate(b); err != nil {
		t.Fatalf("reply: %v", err)
	}
	b, _ = json.Marshal(protocol.NewError("r1", protocol.ErrBusy, "busy"))
	if _, err := protocol.Validate(b); err != nil {
		t.Fatalf("error: %v", err)
	}
}
