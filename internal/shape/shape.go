// Package shape checks an extracted model payload against the schema for
// its task and converts it into a typed content.Result.
//
// Required fields are enforced; optional fields default to their zero value.
// Recoverable problems (a malformed MCQ item, an unknown format key) are
// dropped and reported as warnings instead of failing the whole result.
// Shape never mutates its input and gives the same output for the same
// payload.
package shape

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/abhisek/vizlearn/internal/content"
	"github.com/abhisek/vizlearn/internal/extract"
)

// Error reports a payload that does not have the shape its task requires.
type Error struct {
	Missing    []string
	Mismatched []string

	// Detail is an optional human-readable note.
	Detail string
}

func (e *Error) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Mismatched) > 0 {
		parts = append(parts, "invalid "+strings.Join(e.Mismatched, ", "))
	}
	if e.Detail != "" {
		parts = append(parts, e.Detail)
	}
	if len(parts) == 0 {
		return "schema: payload rejected"
	}
	return "schema: " + strings.Join(parts, "; ")
}

// Fields lists every offending field, missing first.
func (e *Error) Fields() []string {
	return append(append([]string(nil), e.Missing...), e.Mismatched...)
}

// Warning describes something Shape dropped or normalized.
type Warning struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	return w.Field + ": " + w.Message
}

// Shape converts payload into the result type for task. format is the
// requested visualization target and is ignored for content.TaskMCQ.
func Shape(task content.Task, format content.Format, payload extract.Payload) (content.Result, []Warning, error) {
	if payload == nil {
		return nil, nil, &Error{Mismatched: []string{"(root)"}, Detail: "payload is empty"}
	}

	switch task {
	case content.TaskCode, content.TaskImageCode:
		return shapeCode(task, format, payload)
	case content.TaskMCQ:
		return shapeMCQ(payload)
	default:
		return nil, nil, &content.InvalidInputError{Field: "task", Message: fmt.Sprintf("unknown task %q", task)}
	}
}

func shapeCode(task content.Task, format content.Format, payload extract.Payload) (content.Result, []Warning, error) {
	if !format.Valid() {
		return nil, nil, &content.InvalidInputError{Field: "format", Message: fmt.Sprintf("unsupported format %q", format)}
	}

	var warns []Warning
	doc := cloneMap(payload)

	if outputs, ok := doc["codeOutputs"].(map[string]any); ok {
		doc["codeOutputs"] = canonicalOutputs(outputs, format, &warns)
	}
	coerceOptionalStrings(doc, "learningObjectives", &warns)
	coerceOptionalString(doc, "interactivityNotes", &warns)
	if concept, ok := doc["concept"].(map[string]any); ok {
		concept = cloneMap(concept)
		var conceptWarns []Warning
		coerceOptionalStrings(concept, "principles", &conceptWarns)
		for _, w := range conceptWarns {
			warns = append(warns, Warning{Field: "concept." + w.Field, Message: w.Message})
		}
		doc["concept"] = concept
	}

	schema := "code"
	if task == content.TaskImageCode {
		schema = "image"
		if _, ok := doc["concept"]; ok {
			if _, isObj := doc["concept"].(map[string]any); !isObj {
				delete(doc, "concept")
				warns = append(warns, Warning{Field: "concept", Message: "not an object, ignored"})
			}
		}
	}

	if err := validate(schema, doc); err != nil {
		return nil, warns, err
	}

	outputs := doc["codeOutputs"].(map[string]any)
	code, _ := outputs[string(format)].(string)
	if strings.TrimSpace(code) == "" {
		return nil, warns, &Error{Missing: []string{"codeOutputs." + string(format)}}
	}

	bundle := content.CodeBundle{
		Summary:            stringField(doc, "summary"),
		LearningObjectives: stringsField(doc, "learningObjectives"),
		InteractivityNotes: stringField(doc, "interactivityNotes"),
		CodeOutputs:        make(map[content.Format]string, len(outputs)),
	}
	if concept, ok := doc["concept"].(map[string]any); ok {
		bundle.Concept = content.Concept{
			Name:       stringField(concept, "name"),
			Principles: stringsField(concept, "principles"),
		}
	}
	for k, v := range outputs {
		bundle.CodeOutputs[content.Format(k)] = v.(string)
	}

	return content.NewCodeBundle(task, bundle), warns, nil
}

// canonicalOutputs maps legacy format keys onto canonical ones and drops
// entries no renderer can use. A canonical key wins over its alias.
func canonicalOutputs(in map[string]any, requested content.Format, warns *[]Warning) map[string]any {
	out := make(map[string]any, len(in))
	fromCanonical := make(map[content.Format]bool, len(in))

	for _, key := range sortedKeys(in) {
		field := "codeOutputs." + key
		f, ok := content.ParseFormat(key)
		if !ok {
			*warns = append(*warns, Warning{Field: field, Message: "unknown format, dropped"})
			continue
		}
		v := in[key]
		if _, isString := v.(string); !isString && f != requested {
			*warns = append(*warns, Warning{Field: field, Message: "code is not a string, dropped"})
			continue
		}

		canonical := string(f) == strings.ToLower(strings.TrimSpace(key))
		if _, seen := out[string(f)]; seen {
			if !canonical && fromCanonical[f] {
				*warns = append(*warns, Warning{Field: field, Message: fmt.Sprintf("duplicates %q, dropped", f)})
				continue
			}
			*warns = append(*warns, Warning{Field: field, Message: fmt.Sprintf("replaces an alias of %q", f)})
		}
		out[string(f)] = v
		fromCanonical[f] = canonical
	}
	return out
}

func shapeMCQ(payload extract.Payload) (content.Result, []Warning, error) {
	if err := validate("mcq", map[string]any(payload)); err != nil {
		return nil, nil, err
	}

	raw := payload["questions"].([]any)
	if len(raw) == 0 {
		return nil, nil, &Error{Mismatched: []string{"questions"}, Detail: "no questions"}
	}

	var warns []Warning
	set := &content.McqSet{Questions: make([]content.McqItem, 0, len(raw))}

	for i, v := range raw {
		field := fmt.Sprintf("questions[%d]", i)

		obj, ok := v.(map[string]any)
		if !ok {
			warns = append(warns, Warning{Field: field, Message: "not an object, dropped"})
			continue
		}

		item, itemWarns, err := shapeItem(obj)
		for _, w := range itemWarns {
			warns = append(warns, Warning{Field: field + "." + w.Field, Message: w.Message})
		}
		if err != nil {
			warns = append(warns, Warning{Field: field, Message: "dropped: " + err.Error()})
			continue
		}
		set.Questions = append(set.Questions, item)
	}

	if len(set.Questions) == 0 {
		return nil, warns, &Error{
			Mismatched: []string{"questions"},
			Detail:     fmt.Sprintf("all %d questions were invalid", len(raw)),
		}
	}
	return set, warns, nil
}

func shapeItem(obj map[string]any) (content.McqItem, []Warning, error) {
	var warns []Warning
	doc := cloneMap(obj)

	if v, ok := doc["correctAnswer"]; ok {
		if idx, ok := coerceAnswer(v, doc["options"]); ok {
			doc["correctAnswer"] = json.Number(strconv.Itoa(idx))
		}
	}
	coerceOptionalString(doc, "explanation", &warns)
	coerceOptionalString(doc, "bloomsLevel", &warns)
	coerceOptionalString(doc, "relatedLearningObjective", &warns)

	if err := validate("mcq-item", doc); err != nil {
		return content.McqItem{}, warns, err
	}

	answer, _ := toInt(doc["correctAnswer"])
	item := content.McqItem{
		Question:                 stringField(doc, "question"),
		Options:                  stringsField(doc, "options"),
		CorrectAnswer:            answer,
		Explanation:              stringField(doc, "explanation"),
		RelatedLearningObjective: stringField(doc, "relatedLearningObjective"),
		BloomsLevel:              content.BloomsUnspecified,
	}

	if raw := strings.TrimSpace(stringField(doc, "bloomsLevel")); raw != "" {
		level, ok := content.ParseBloomsLevel(raw)
		if !ok {
			warns = append(warns, Warning{Field: "bloomsLevel", Message: fmt.Sprintf("unrecognized level %q", raw)})
		}
		item.BloomsLevel = level
	}

	return item, warns, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func stringsField(m map[string]any, key string) []string {
	raw, _ := m[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
