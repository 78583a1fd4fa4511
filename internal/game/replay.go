package game

import (
	"errors"
	"fmt"

	eventlog "seedhive.ai/internal/persistence/log"
	"seedhive.ai/internal/sim/digest"
	"seedhive.ai/internal/sim/model"
	"seedhive.ai/internal/sim/tuning"
)

var ErrNoAnchor = errors.New("no log entry starts from the given state")

// MismatchError reports the first entry whose recomputed digest differs
// from the recorded one.
type MismatchError struct {
	Seq   int64
	Cycle int
	Want  string
	Got   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("entry %d (cycle %d): digest mismatch want=%s got=%s", e.Seq, e.Cycle, e.Want, e.Got)
}

type ReplayResult struct {
	State   model.State
	Applied int
	// Skipped counts entries before the anchor.
	Skipped int
}

// Replay re-applies entries to start and checks every recorded digest.
// With a nil start the replay anchors on the last new_run entry.
func Replay(start *model.State, entries []eventlog.Entry, t tuning.Tuning) (ReplayResult, error) {
	k := -1
	var cur model.State
	if start == nil {
		for i := len(entries) - 1; i >= 0; i-- {
			if entries[i].Kind == eventlog.KindNewRun {
				k = i
				break
			}
		}
	} else {
		cur = *start
		want := digest.State(cur)
		for i, e := range entries {
			if e.Before == want {
				k = i
				break
			}
		}
	}
	if k < 0 {
		return ReplayResult{State: cur}, ErrNoAnchor
	}

	res := ReplayResult{State: cur, Skipped: k}
	for _, e := range entries[k:] {
		in, err := InputFromEntry(e)
		if err != nil {
			return res, err
		}
		if e.Kind != eventlog.KindNewRun {
			if got := digest.State(res.State); got != e.Before {
				return res, &MismatchError{Seq: e.Seq, Cycle: e.Cycle, Want: e.Before, Got: got}
			}
		}
		out := Step(in, res.State, in.Dilemma, t)
		if out.Code != "" {
			return res, fmt.Errorf("entry %d: rejected with %s: %s", e.Seq, out.Code, out.Reply)
		}
		res.State = out.State
		if got := digest.State(res.State); got != e.Digest {
			return res, &MismatchError{Seq: e.Seq, Cycle: e.Cycle, Want: e.Digest, Got: got}
		}
		res.Applied++
	}
	return res, nil
}
