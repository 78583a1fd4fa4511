package protocol

import "seedhive.ai/internal/sim/model"

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`

	// NewRun discards the current run and starts a fresh one at the
	// difficulty derived from past completions.
	NewRun bool `json:"new_run,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	SessionID       string       `json:"session_id"`
	TuningDigest    string       `json:"tuning_digest,omitempty"`
	State           model.State  `json:"state"`
	Dilemma         *DilemmaView `json:"dilemma,omitempty"`
	Returning       *Returning   `json:"returning,omitempty"`
}

// Returning summarizes previous runs for a returning player.
type Returning struct {
	Completions     int      `json:"completions"`
	LastPhase       string   `json:"last_phase"`
	LastReflection  string   `json:"last_reflection,omitempty"`
	WorldsSeeded    []string `json:"worlds_seeded"`
	DecisionPattern string   `json:"decision_pattern"`
}

// DIRECTIVE (client -> server)
type DirectiveMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	Text            string `json:"text"`
}

// CHOOSE (client -> server)
type ChooseMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	DilemmaID       string `json:"dilemma_id"`
	ChoiceID        string `json:"choice_id"`
}

type LogLine struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// REPLY (server -> client)
type ReplyMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	ReqID           string       `json:"req_id"`
	Handled         bool         `json:"handled"`
	Reply           string       `json:"reply"`
	Logs            []LogLine    `json:"logs"`
	State           model.State  `json:"state"`
	Dilemma         *DilemmaView `json:"dilemma,omitempty"`
}

// NARRATION (server -> client), sent when a deferred narrator call returns.
type NarrationMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	ReqID           string       `json:"req_id"`
	Text            string       `json:"text"`
	Applied         bool         `json:"applied"`
	State           *model.State `json:"state,omitempty"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

type OptionView struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// DilemmaView is the client-facing form of a pending dilemma. Outcomes stay
// on the server.
type DilemmaView struct {
	ID          string       `json:"id"`
	Kind        string       `json:"kind"`
	Cycle       int          `json:"cycle"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Options     []OptionView `json:"options"`
}

func NewError(reqID, code, msg string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, ReqID: reqID, Code: code, Message: msg}
}
