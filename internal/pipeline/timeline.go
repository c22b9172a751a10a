package pipeline

import "time"

// Stage is a state of a pipeline run.
type Stage string

const (
	StageValidating Stage = "validating"
	StagePrompting  Stage = "prompting"
	StageInvoking   Stage = "invoking"
	StageExtracting Stage = "extracting"
	StageShaping    Stage = "shaping"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// Transition records entry into a stage. At carries a monotonic reading.
type Transition struct {
	Stage Stage
	At    time.Time
}

// Timeline is the ordered list of stages a run went through.
type Timeline struct {
	Transitions []Transition
}

func (t *Timeline) enter(s Stage, at time.Time) {
	t.Transitions = append(t.Transitions, Transition{Stage: s, At: at})
}

// Last returns the most recent stage, or "" for an empty timeline.
func (t Timeline) Last() Stage {
	if len(t.Transitions) == 0 {
		return ""
	}
	return t.Transitions[len(t.Transitions)-1].Stage
}

// Total is the time from the first to the last transition.
func (t Timeline) Total() time.Duration {
	if len(t.Transitions) < 2 {
		return 0
	}
	return t.Transitions[len(t.Transitions)-1].At.Sub(t.Transitions[0].At)
}

// Durations returns how long each completed stage took, keyed by stage.
func (t Timeline) Durations() map[Stage]time.Duration {
	out := make(map[Stage]time.Duration, len(t.Transitions))
	for i := 0; i+1 < len(t.Transitions); i++ {
		cur := t.Transitions[i]
		out[cur.Stage] += t.Transitions[i+1].At.Sub(cur.At)
	}
	return out
}

// Stages lists the stages in the order they were entered.
func (t Timeline) Stages() []Stage {
	out := make([]Stage, len(t.Transitions))
	for i, tr := range t.Transitions {
		out[i] = tr.Stage
	}
	return out
}
