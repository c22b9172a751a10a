package content

import "strings"

// Result is the typed outcome of a successful run: *CodeBundle or *McqSet.
type Result interface {
	resultTask() Task
}

// TaskOf reports which task produced r.
func TaskOf(r Result) Task {
	if r == nil {
		return ""
	}
	return r.resultTask()
}

// CodeBundle is the artifact set produced by TaskCode and TaskImageCode.
type CodeBundle struct {
	Summary            string            `json:"summary"`
	Concept            Concept           `json:"concept"`
	LearningObjectives []string          `json:"learningObjectives"`
	InteractivityNotes string            `json:"interactivityNotes"`
	CodeOutputs        map[Format]string `json:"codeOutputs"`

	task Task
}

// NewCodeBundle stamps b with the task that produced it.
func NewCodeBundle(task Task, b CodeBundle) *CodeBundle {
	b.task = task
	return &b
}

func (b *CodeBundle) resultTask() Task {
	if b.task == "" {
		return TaskCode
	}
	return b.task
}

// Code returns the source for f and whether it is present.
func (b *CodeBundle) Code(f Format) (string, bool) {
	code, ok := b.CodeOutputs[f]
	return code, ok
}

// McqSet is the assessment produced by TaskMCQ.
type McqSet struct {
	Questions []McqItem `json:"questions"`
}

func (*McqSet) resultTask() Task { return TaskMCQ }

// OptionCount is the exact number of options every question carries.
const OptionCount = 4

// McqItem is a single multiple-choice question.
type McqItem struct {
	Question                 string      `json:"question"`
	Options                  []string    `json:"options"`
	CorrectAnswer            int         `json:"correctAnswer"`
	Explanation              string      `json:"explanation"`
	BloomsLevel              BloomsLevel `json:"bloomsLevel"`
	RelatedLearningObjective string      `json:"relatedLearningObjective"`
}

// BloomsLevel tags the cognitive skill a question assesses.
type BloomsLevel string

const (
	BloomsRecall        BloomsLevel = "recall"
	BloomsComprehension BloomsLevel = "comprehension"
	BloomsApplication   BloomsLevel = "application"
	BloomsAnalysis      BloomsLevel = "analysis"
	BloomsSynthesis     BloomsLevel = "synthesis"
	BloomsEvaluation    BloomsLevel = "evaluation"
	BloomsUnspecified   BloomsLevel = "unspecified"
)

// bloomsKeywords is checked in order; the first keyword found in the
// model's label wins, so "Evaluation/Synthesis" maps to evaluation.
var bloomsKeywords = []struct {
	keyword string
	level   BloomsLevel
}{
	{"recall", BloomsRecall},
	{"knowledge", BloomsRecall},
	{"remember", BloomsRecall},
	{"comprehen", BloomsComprehension},
	{"understand", BloomsComprehension},
	{"appl", BloomsApplication},
	{"analy", BloomsAnalysis},
	{"evaluat", BloomsEvaluation},
	{"synthes", BloomsSynthesis},
	{"creat", BloomsSynthesis},
}

// ParseBloomsLevel normalises a free-text Bloom's label. The second return
// value is false when nothing matched and BloomsUnspecified was returned.
func ParseBloomsLevel(s string) (BloomsLevel, bool) {
	label := strings.ToLower(strings.TrimSpace(s))
	if label == "" {
		return BloomsUnspecified, false
	}

	best, bestAt := BloomsUnspecified, -1
	for _, kw := range bloomsKeywords {
		at := strings.Index(label, kw.keyword)
		if at < 0 {
			continue
		}
		if bestAt < 0 || at < bestAt {
			best, bestAt = kw.level, at
		}
	}
	return best, bestAt >= 0
}
