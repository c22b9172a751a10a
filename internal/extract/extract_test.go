package extract

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_CleanObject(t *testing.T) {
	p, err := Extract(`{"summary": "Photosynthesis", "count": 3}`)
	require.NoError(t, err)
	assert.Equal(t, "Photosynthesis", p["summary"])
	assert.Equal(t, json.Number("3"), p["count"])
}

func TestExtract_Fenced(t *testing.T) {
	raw := "Here you go:\n```json\n{\"summary\": \"fenced\"}\n```\nLet me know if you need more."
	p, err := Extract(raw)
	require.NoError(t, err)
	assert.Equal(t, "fenced", p["summary"])
}

func TestExtract_SurroundingProse(t *testing.T) {
	p, err := Extract(`Sure! {"summary": "ok"} Hope that helps.`)
	require.NoError(t, err)
	assert.Equal(t, "ok", p["summary"])
}

func TestExtract_StrayBraceInProse(t *testing.T) {
	p, err := Extract(`Use { carefully. {"summary": "ok"}`)
	require.NoError(t, err)
	assert.Equal(t, "ok", p["summary"])
}

func TestExtract_Nested(t *testing.T) {
	raw := `{"summary": "s", "concept": {"name": "Gravity", "principles": ["mass", "distance"]}}`
	p, err := Extract(raw)
	require.NoError(t, err)

	concept, ok := p["concept"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Gravity", concept["name"])
}

func TestExtract_BracesInsideStrings(t *testing.T) {
	raw := `{"code": "function f() { if (x) { return \"}\"; } }", "note": "say \"{\" now"}`
	p, err := Extract(raw)
	require.NoError(t, err)
	assert.Equal(t, `function f() { if (x) { return "}"; } }`, p["code"])
	assert.Equal(t, `say "{" now`, p["note"])
}

func TestExtract_MultipleBlocksPicksLargest(t *testing.T) {
	raw := "Draft:\n```json\n{\"a\": 1}\n```\nFinal:\n```json\n{\"summary\": \"final\", \"items\": [1, 2, 3]}\n```"
	p, info, err := ExtractWithInfo(raw)
	require.NoError(t, err)
	assert.Equal(t, "final", p["summary"])
	assert.Equal(t, 2, info.Candidates)
	assert.False(t, info.Repaired)
	assert.Equal(t, `{"summary": "final", "items": [1, 2, 3]}`, raw[info.Start:info.End])
}

func TestExtract_SkipsInvalidSpan(t *testing.T) {
	p, err := Extract(`{"a": nope} then {"summary": "ok"}`)
	require.NoError(t, err)
	assert.Equal(t, "ok", p["summary"])
}

func TestExtract_Truncated(t *testing.T) {
	raw := `{"summary": "Foo`
	_, err := Extract(raw)
	require.Error(t, err)

	var exErr *Error
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, raw, exErr.Raw)
	assert.True(t, errors.Is(err, ErrTruncated))
}

func TestExtract_TruncatedDoesNotReturnInnerObject(t *testing.T) {
	raw := `{"summary": "x", "concept": {"name": "Gravity"}, "codeOutputs": {"diagram": "graph TD; A-->`
	_, err := Extract(raw)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTruncated))
}

func TestExtract_TruncatedAfterEmptyObject(t *testing.T) {
	raw := "Sketch uses function setup() {} then:\n{\"summary\": \"Foo"
	p, err := Extract(raw)
	require.Error(t, err)
	assert.Nil(t, p)
	assert.True(t, errors.Is(err, ErrTruncated))

	var exErr *Error
	require.True(t, errors.As(err, &exErr))
	assert.Equal(t, raw, exErr.Raw)
}

func TestExtract_TruncatedAfterSmallObject(t *testing.T) {
	raw := `Example: {"a": 1}. Result: {"summary": "Photosynthesis converts light", "concept": {"name": "Photo`
	_, err := Extract(raw)
	assert.True(t, errors.Is(err, ErrTruncated))
}

func TestExtract_CompleteObjectBeforeShortTail(t *testing.T) {
	p, err := Extract(`{"summary": "complete answer here"} {"`)
	require.NoError(t, err)
	assert.Equal(t, "complete answer here", p["summary"])
}

func TestExtract_NoObject(t *testing.T) {
	_, err := Extract("I could not produce an answer for that.")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoObject))
}

func TestExtract_InvalidOnly(t *testing.T) {
	raw := `{"a": nope}`
	_, err := Extract(raw)
	require.Error(t, err)

	var exErr *Error
	require.True(t, errors.As(err, &exErr))
	assert.True(t, errors.Is(err, ErrInvalid))
	assert.Equal(t, raw, exErr.Raw)
}

func TestExtract_Empty(t *testing.T) {
	_, err := Extract("  \n ")
	assert.True(t, errors.Is(err, ErrEmpty))
}

func TestExtract_TooLarge(t *testing.T) {
	_, err := Extract(strings.Repeat("a", MaxInputBytes+1))
	assert.True(t, errors.Is(err, ErrTooLarge))
}

func TestExtract_RepairPass(t *testing.T) {
	raw := "{\n  \"score\": .5, // model commentary\n  \"items\": [1, 2,],\n  /* block */ \"ok\": true,\n}"
	p, info, err := ExtractWithInfo(raw)
	require.NoError(t, err)
	assert.True(t, info.Repaired)
	assert.Equal(t, json.Number("0.5"), p["score"])
	assert.Equal(t, true, p["ok"])
	assert.Len(t, p["items"], 2)
}

func TestExtract_StrictPreferredOverRepaired(t *testing.T) {
	raw := `{"a": 1,} {"b": 2}`
	p, info, err := ExtractWithInfo(raw)
	require.NoError(t, err)
	assert.False(t, info.Repaired)
	assert.Equal(t, json.Number("2"), p["b"])
}

func TestRepair_LeavesStringsAlone(t *testing.T) {
	in := `{"url": "http://x.y/*z*/", "n": ".5", "s": "a, }"}`
	assert.Equal(t, in, Repair(in))
}

func TestRepair_NegativeLeadingDecimal(t *testing.T) {
	assert.Equal(t, `{"v": -0.25}`, Repair(`{"v": -.25}`))
}

func TestError_Message(t *testing.T) {
	err := &Error{Raw: "x", Reason: "reply contains no JSON object", Err: ErrNoObject}
	assert.Equal(t, "extract: reply contains no JSON object", err.Error())
}
