// Package extract recovers the JSON object embedded in a model reply.
//
// Replies routinely wrap the object in prose or markdown fences, and are
// sometimes cut off mid-object. Extraction scans the reply character by
// character, tracking nesting depth and string literals, and returns the
// largest top-level object that parses strictly. When none does, a repair
// pass strips comments, trailing commas and bare leading decimals before a
// second attempt. Every failure carries the raw reply.
package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// MaxInputBytes bounds the reply size the scanner accepts.
const MaxInputBytes = 4 << 20

var (
	ErrEmpty     = errors.New("empty reply")
	ErrTooLarge  = errors.New("reply too large")
	ErrNoObject  = errors.New("no JSON object found")
	ErrTruncated = errors.New("JSON object is truncated")
	ErrInvalid   = errors.New("no candidate parses as a JSON object")
)

// Payload is the decoded object. Numbers are json.Number.
type Payload map[string]any

// Info describes how a payload was recovered.
type Info struct {
	// Start and End delimit the chosen span in the raw reply.
	Start, End int

	// Candidates is the number of balanced top-level spans considered.
	Candidates int

	// Repaired is set when the span only parsed after the repair pass.
	Repaired bool
}

// Error reports an extraction failure. Raw is the complete reply so the
// caller can show it for diagnosis.
type Error struct {
	Raw    string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	return "extract: " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// Extract returns the largest valid JSON object embedded in raw.
func Extract(raw string) (Payload, error) {
	p, _, err := ExtractWithInfo(raw)
	return p, err
}

// ExtractWithInfo is Extract that also reports which span was chosen.
func ExtractWithInfo(raw string) (Payload, Info, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, Info{}, &Error{Raw: raw, Reason: "reply is empty", Err: ErrEmpty}
	}
	if len(raw) > MaxInputBytes {
		return nil, Info{}, &Error{
			Raw:    raw,
			Reason: fmt.Sprintf("reply is %d bytes, limit is %d", len(raw), MaxInputBytes),
			Err:    ErrTooLarge,
		}
	}

	spans, open := scan(raw)
	info := Info{Candidates: len(spans)}
	truncated := &Error{Raw: raw, Reason: "reply ends inside an unterminated JSON object", Err: ErrTruncated}

	// A complete object shorter than the unterminated tail is a fragment of
	// prose (or an empty {}), not the payload the model was cut off writing.
	cutOff := func(sp span) bool {
		return open >= 0 && sp.end-sp.start < len(raw)-open
	}

	if p, sp, ok := pickLargest(raw, spans, false); ok {
		if cutOff(sp) {
			return nil, info, truncated
		}
		info.Start, info.End = sp.start, sp.end
		return p, info, nil
	}
	if p, sp, ok := pickLargest(raw, spans, true); ok {
		if cutOff(sp) {
			return nil, info, truncated
		}
		info.Start, info.End, info.Repaired = sp.start, sp.end, true
		return p, info, nil
	}

	switch {
	case len(spans) == 0 && open >= 0:
		return nil, info, truncated
	case len(spans) == 0:
		return nil, info, &Error{Raw: raw, Reason: "reply contains no JSON object", Err: ErrNoObject}
	default:
		return nil, info, &Error{
			Raw:    raw,
			Reason: fmt.Sprintf("none of %d brace-delimited spans is valid JSON", len(spans)),
			Err:    ErrInvalid,
		}
	}
}

type span struct {
	start, end int // raw[start:end]
}

// scan returns every balanced span that starts at a top-level '{'. A '{'
// only opens a candidate when the next non-space byte is '"' or '}', which
// keeps stray braces in prose from swallowing the real object. open is the
// start of a candidate still unterminated at end of input, or -1.
func scan(s string) (spans []span, open int) {
	for i := 0; i < len(s); i++ {
		if s[i] != '{' || !opensObject(s, i) {
			continue
		}
		end, ok := matchBrace(s, i)
		if !ok {
			return spans, i
		}
		spans = append(spans, span{start: i, end: end})
		i = end - 1
	}
	return spans, -1
}

func opensObject(s string, i int) bool {
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case ' ', '\n', '\r', '\t':
			continue
		case '"', '}':
			return true
		case '/':
			// Commented objects are left to the repair pass.
			return j+1 < len(s) && (s[j+1] == '/' || s[j+1] == '*')
		default:
			return false
		}
	}
	// A lone '{' at the very end is a truncated object.
	return true
}

// matchBrace returns the index just past the '}' closing the '{' at start.
func matchBrace(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

// pickLargest decodes each span and returns the longest that succeeds.
// Ties go to the earlier span.
func pickLargest(raw string, spans []span, repair bool) (Payload, span, bool) {
	var (
		best   Payload
		bestSp span
		found  bool
	)
	for _, sp := range spans {
		if found && sp.end-sp.start <= bestSp.end-bestSp.start {
			continue
		}
		text := raw[sp.start:sp.end]
		if repair {
			text = Repair(text)
		}
		p, ok := decodeObject(text)
		if !ok {
			continue
		}
		best, bestSp, found = p, sp, true
	}
	return best, bestSp, found
}

func decodeObject(text string) (Payload, bool) {
	if !gjson.Valid(text) {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	var p Payload
	if err := dec.Decode(&p); err != nil || p == nil {
		return nil, false
	}
	return p, true
}
