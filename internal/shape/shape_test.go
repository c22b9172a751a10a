package shape

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/vizlearn/internal/content"
	"github.com/abhisek/vizlearn/internal/extract"
)

func payload(t *testing.T, raw string) extract.Payload {
	t.Helper()
	p, err := extract.Extract(raw)
	require.NoError(t, err)
	return p
}

const bundleJSON = `{
  "summary": "Predators and prey rise and fall in turn.",
  "concept": {"name": "Predator-Prey Dynamics", "principles": ["Populations oscillate", "Peaks lag"]},
  "learningObjectives": ["Describe the cycle"],
  "interactivityNotes": "Click to add wolves.",
  "codeOutputs": {"canvas2d": "function setup() {}"}
}`

func TestShape_CodeBundle(t *testing.T) {
	res, warns, err := Shape(content.TaskCode, content.FormatCanvas2D, payload(t, bundleJSON))
	require.NoError(t, err)
	assert.Empty(t, warns)

	b, ok := res.(*content.CodeBundle)
	require.True(t, ok)
	assert.Equal(t, content.TaskCode, content.TaskOf(res))
	assert.Equal(t, "Predator-Prey Dynamics", b.Concept.Name)
	assert.Equal(t, []string{"Populations oscillate", "Peaks lag"}, b.Concept.Principles)
	assert.Equal(t, []string{"Describe the cycle"}, b.LearningObjectives)
	assert.Equal(t, "Click to add wolves.", b.InteractivityNotes)

	code, ok := b.Code(content.FormatCanvas2D)
	require.True(t, ok)
	assert.Equal(t, "function setup() {}", code)
}

func TestShape_OptionalFieldsDefault(t *testing.T) {
	raw := `{"summary": "s", "concept": {"name": "n", "principles": []}, "codeOutputs": {"diagram": "graph TD; A-->B"}}`
	res, warns, err := Shape(content.TaskCode, content.FormatDiagram, payload(t, raw))
	require.NoError(t, err)
	assert.Empty(t, warns)

	b := res.(*content.CodeBundle)
	assert.Equal(t, "", b.InteractivityNotes)
	assert.NotNil(t, b.LearningObjectives)
	assert.Empty(t, b.LearningObjectives)
}

func TestShape_LegacyKeysAndUnknownFormats(t *testing.T) {
	raw := `{"summary": "s", "concept": {"name": "n", "principles": ["p"]},
	  "codeOutputs": {"p5js": "sketch", "d3js": "chart", "svg": "<svg/>", "threejs": 42}}`
	res, warns, err := Shape(content.TaskCode, content.FormatCanvas2D, payload(t, raw))
	require.NoError(t, err)

	b := res.(*content.CodeBundle)
	assert.Equal(t, map[content.Format]string{
		content.FormatCanvas2D: "sketch",
		content.FormatChart:    "chart",
	}, b.CodeOutputs)

	fields := warningFields(warns)
	assert.Contains(t, fields, "codeOutputs.svg")
	assert.Contains(t, fields, "codeOutputs.threejs")
}

func TestShape_CanonicalKeyBeatsAlias(t *testing.T) {
	raw := `{"summary": "s", "concept": {"name": "n", "principles": []},
	  "codeOutputs": {"canvas2d": "canonical", "p5js": "alias"}}`
	res, warns, err := Shape(content.TaskCode, content.FormatCanvas2D, payload(t, raw))
	require.NoError(t, err)
	assert.Equal(t, "canonical", res.(*content.CodeBundle).CodeOutputs[content.FormatCanvas2D])
	assert.Contains(t, warningFields(warns), "codeOutputs.p5js")
}

func TestShape_RequestedFormatMissing(t *testing.T) {
	raw := `{"summary": "s", "concept": {"name": "n", "principles": []}, "codeOutputs": {"chart": "x"}}`
	_, _, err := Shape(content.TaskCode, content.FormatCanvas2D, payload(t, raw))

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{"codeOutputs.canvas2d"}, se.Missing)
}

func TestShape_RequestedFormatNotString(t *testing.T) {
	raw := `{"summary": "s", "concept": {"name": "n", "principles": []}, "codeOutputs": {"canvas2d": {"code": "x"}}}`
	_, _, err := Shape(content.TaskCode, content.FormatCanvas2D, payload(t, raw))

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{"codeOutputs.canvas2d"}, se.Mismatched)
}

func TestShape_MissingRequiredFields(t *testing.T) {
	raw := `{"concept": {"principles": []}, "codeOutputs": {"canvas2d": "x"}}`
	_, _, err := Shape(content.TaskCode, content.FormatCanvas2D, payload(t, raw))

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{"concept.name", "summary"}, se.Missing)
	assert.Contains(t, se.Error(), "missing concept.name, summary")
}

func TestShape_TypeMismatch(t *testing.T) {
	raw := `{"summary": 12, "concept": {"name": "n", "principles": []}, "codeOutputs": {"canvas2d": "x"}}`
	_, _, err := Shape(content.TaskCode, content.FormatCanvas2D, payload(t, raw))

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{"summary"}, se.Mismatched)
}

func TestShape_OptionalCoercions(t *testing.T) {
	raw := `{"summary": "s", "concept": {"name": "n", "principles": "one idea"},
	  "learningObjectives": "a single objective", "interactivityNotes": ["not", "a", "string"],
	  "codeOutputs": {"scene3d": "scene"}}`
	res, warns, err := Shape(content.TaskCode, content.FormatScene3D, payload(t, raw))
	require.NoError(t, err)

	b := res.(*content.CodeBundle)
	assert.Equal(t, []string{"one idea"}, b.Concept.Principles)
	assert.Equal(t, []string{"a single objective"}, b.LearningObjectives)
	assert.Equal(t, "", b.InteractivityNotes)
	assert.Len(t, warns, 3)
}

func TestShape_ImageConceptOptional(t *testing.T) {
	raw := `{"summary": "A lever diagram.", "codeOutputs": {"canvas2d": "sketch"}}`
	res, _, err := Shape(content.TaskImageCode, content.FormatCanvas2D, payload(t, raw))
	require.NoError(t, err)

	assert.Equal(t, content.TaskImageCode, content.TaskOf(res))
	assert.Equal(t, "", res.(*content.CodeBundle).Concept.Name)
}

func mcqItem(question string, options []string, answer any) map[string]any {
	return map[string]any{
		"question":                 question,
		"options":                  options,
		"correctAnswer":            answer,
		"explanation":              "because",
		"bloomsLevel":              "Application",
		"relatedLearningObjective": "objective",
	}
}

func mcqPayload(t *testing.T, items ...map[string]any) extract.Payload {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"questions": items})
	require.NoError(t, err)
	return payload(t, string(raw))
}

var four = []string{"A", "B", "C", "D"}

func TestShape_MCQDropsShortItem(t *testing.T) {
	items := []map[string]any{
		mcqItem("q1", four, 0),
		mcqItem("q2", four, 1),
		mcqItem("q3", []string{"A", "B", "C"}, 2),
		mcqItem("q4", four, 3),
		mcqItem("q5", four, 2),
	}
	res, warns, err := Shape(content.TaskMCQ, "", mcqPayload(t, items...))
	require.NoError(t, err)

	set := res.(*content.McqSet)
	require.Len(t, set.Questions, 4)
	for _, q := range set.Questions {
		assert.NotEqual(t, "q3", q.Question)
		assert.Len(t, q.Options, content.OptionCount)
	}
	require.Len(t, warns, 1)
	assert.Equal(t, "questions[2]", warns[0].Field)
	assert.Contains(t, warns[0].Message, "options")
}

func TestShape_MCQAnswerOutOfRange(t *testing.T) {
	res, warns, err := Shape(content.TaskMCQ, "", mcqPayload(t,
		mcqItem("bad", four, 4),
		mcqItem("good", four, 3),
	))
	require.NoError(t, err)

	set := res.(*content.McqSet)
	require.Len(t, set.Questions, 1)
	assert.Equal(t, "good", set.Questions[0].Question)
	assert.Equal(t, 3, set.Questions[0].CorrectAnswer)
	require.Len(t, warns, 1)
	assert.Contains(t, warns[0].Message, "correctAnswer")
}

func TestShape_MCQAllInvalid(t *testing.T) {
	_, _, err := Shape(content.TaskMCQ, "", mcqPayload(t, mcqItem("bad", four, 4)))

	var se *Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{"questions"}, se.Mismatched)
}

func TestShape_MCQEmptyAndMissing(t *testing.T) {
	_, _, err := Shape(content.TaskMCQ, "", payload(t, `{"questions": []}`))
	var se *Error
	require.True(t, errors.As(err, &se))

	_, _, err = Shape(content.TaskMCQ, "", payload(t, `{"items": []}`))
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{"questions"}, se.Missing)
}

func TestShape_MCQAnswerCoercion(t *testing.T) {
	tests := []struct {
		answer any
		want   int
	}{
		{"2", 2},
		{"B", 1},
		{"d)", 3},
		{"Option C", 2},
		{"Gamma", 2},
		{2.0, 2},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.answer), func(t *testing.T) {
			item := mcqItem("q", []string{"Alpha", "Beta", "Gamma", "Delta"}, tt.answer)
			res, _, err := Shape(content.TaskMCQ, "", mcqPayload(t, item))
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.(*content.McqSet).Questions[0].CorrectAnswer)
		})
	}
}

func TestShape_MCQBloomsLevel(t *testing.T) {
	recall := mcqItem("q1", four, 0)
	recall["bloomsLevel"] = "Knowledge/Recall"
	odd := mcqItem("q2", four, 0)
	odd["bloomsLevel"] = "vibes"
	none := mcqItem("q3", four, 0)
	delete(none, "bloomsLevel")

	res, warns, err := Shape(content.TaskMCQ, "", mcqPayload(t, recall, odd, none))
	require.NoError(t, err)

	qs := res.(*content.McqSet).Questions
	assert.Equal(t, content.BloomsRecall, qs[0].BloomsLevel)
	assert.Equal(t, content.BloomsUnspecified, qs[1].BloomsLevel)
	assert.Equal(t, content.BloomsUnspecified, qs[2].BloomsLevel)
	require.Len(t, warns, 1)
	assert.Equal(t, "questions[1].bloomsLevel", warns[0].Field)
}

func TestShape_Idempotent(t *testing.T) {
	raw := `{"summary": "s", "concept": {"name": "n", "principles": ["p"]},
	  "codeOutputs": {"p5js": "sketch", "mermaid": "graph", "svg": "x"}, "learningObjectives": "lo"}`
	p := payload(t, raw)
	before := payload(t, raw)

	r1, w1, err1 := Shape(content.TaskCode, content.FormatCanvas2D, p)
	r2, w2, err2 := Shape(content.TaskCode, content.FormatCanvas2D, p)
	require.NoError(t, err1)
	require.NoError(t, err2)

	assert.Equal(t, r1, r2)
	assert.Equal(t, w1, w2)
	assert.Equal(t, before, p)
}

func TestShape_RoundTrip(t *testing.T) {
	t.Run("code", func(t *testing.T) {
		orig, _, err := Shape(content.TaskCode, content.FormatChart, payload(t,
			`{"summary": "s", "concept": {"name": "n", "principles": ["p"]}, "learningObjectives": ["lo"],
			  "interactivityNotes": "hover", "codeOutputs": {"chart": "d3.select('body')", "diagram": "graph TD"}}`))
		require.NoError(t, err)

		again := roundTrip(t, content.TaskCode, content.FormatChart, orig)
		assert.Equal(t, orig, again)
	})

	t.Run("mcq", func(t *testing.T) {
		orig, _, err := Shape(content.TaskMCQ, "", mcqPayload(t, mcqItem("q1", four, 1), mcqItem("q2", four, 2)))
		require.NoError(t, err)

		again := roundTrip(t, content.TaskMCQ, "", orig)
		assert.Equal(t, orig, again)
	})
}

func roundTrip(t *testing.T, task content.Task, format content.Format, r content.Result) content.Result {
	t.Helper()
	raw, err := json.Marshal(r)
	require.NoError(t, err)

	wrapped := "Here is the result you asked for:\n```json\n" + string(raw) + "\n```\nEnjoy!"
	res, _, err := Shape(task, format, payload(t, wrapped))
	require.NoError(t, err)
	return res
}

func TestError_Message(t *testing.T) {
	err := &Error{Missing: []string{"summary"}, Mismatched: []string{"codeOutputs.chart"}, Detail: "note"}
	assert.Equal(t, "schema: missing summary; invalid codeOutputs.chart; note", err.Error())
	assert.Equal(t, []string{"summary", "codeOutputs.chart"}, err.Fields())
}

func warningFields(ws []Warning) string {
	fields := make([]string, len(ws))
	for i, w := range ws {
		fields[i] = w.Field
	}
	return strings.Join(fields, ",")
}

func TestShape_BadTaskOrFormatIsInvalidInput(t *testing.T) {
	p := payload(t, bundleJSON)

	_, _, err := Shape(content.Task("essay"), content.FormatCanvas2D, p)
	var invalid *content.InvalidInputError
	require.True(t, errors.As(err, &invalid), "got %v", err)
	assert.Equal(t, "task", invalid.Field)

	_, _, err = Shape(content.TaskCode, content.Format("flash"), p)
	require.True(t, errors.As(err, &invalid), "got %v", err)
	assert.Equal(t, "format", invalid.Field)
}

func TestValidate_UnknownSchemaIsSchemaError(t *testing.T) {
	err := validate("no-such-schema", map[string]any{})
	var se *Error
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Contains(t, se.Detail, "no-such-schema")
}
