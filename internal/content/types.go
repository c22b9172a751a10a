package content

import "strings"

// Task selects which prompt template, model settings and result schema a
// generation run uses.
type Task string

const (
	// TaskCode turns text or a Wikipedia reference into a CodeBundle.
	TaskCode Task = "code"

	// TaskImageCode turns an uploaded image into a CodeBundle.
	TaskImageCode Task = "image-code"

	// TaskMCQ turns a summary (plus optional concept and objectives) into an McqSet.
	TaskMCQ Task = "mcq"
)

// Valid reports whether t is a known task.
func (t Task) Valid() bool {
	switch t {
	case TaskCode, TaskImageCode, TaskMCQ:
		return true
	}
	return false
}

// SourceKind describes where the raw input came from.
type SourceKind string

const (
	SourceText      SourceKind = "text"
	SourceWikipedia SourceKind = "wikipedia"
	SourceImage     SourceKind = "image"
)

// ParseSourceKind maps a wire value to a SourceKind. The second return value
// is false for anything unrecognised.
func ParseSourceKind(s string) (SourceKind, bool) {
	switch SourceKind(strings.ToLower(strings.TrimSpace(s))) {
	case SourceText:
		return SourceText, true
	case SourceWikipedia:
		return SourceWikipedia, true
	case SourceImage:
		return SourceImage, true
	}
	return "", false
}

// Format is one of the supported visualization code targets.
type Format string

const (
	// FormatDiagram is a node-link diagram definition (Mermaid).
	FormatDiagram Format = "diagram"

	// FormatCanvas2D is a 2D canvas animation sketch (p5.js).
	FormatCanvas2D Format = "canvas2d"

	// FormatScene3D is a 3D scene script (three.js).
	FormatScene3D Format = "scene3d"

	// FormatChart is a chart script (D3.js).
	FormatChart Format = "chart"
)

// Formats lists the supported formats in a stable order.
var Formats = []Format{FormatDiagram, FormatCanvas2D, FormatScene3D, FormatChart}

// formatAliases maps the identifiers used by the legacy UI onto canonical formats.
var formatAliases = map[string]Format{
	"mermaidjs": FormatDiagram,
	"mermaid":   FormatDiagram,
	"p5js":      FormatCanvas2D,
	"p5":        FormatCanvas2D,
	"threejs":   FormatScene3D,
	"three":     FormatScene3D,
	"d3js":      FormatChart,
	"d3":        FormatChart,
}

// ParseFormat resolves a canonical format name or a legacy alias.
func ParseFormat(s string) (Format, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	for _, f := range Formats {
		if string(f) == key {
			return f, true
		}
	}
	if f, ok := formatAliases[key]; ok {
		return f, true
	}
	return "", false
}

// Valid reports whether f is one of the four canonical formats.
func (f Format) Valid() bool {
	for _, c := range Formats {
		if c == f {
			return true
		}
	}
	return false
}

// Runtime names the library the generated code for f targets.
func (f Format) Runtime() string {
	switch f {
	case FormatDiagram:
		return "Mermaid"
	case FormatCanvas2D:
		return "p5.js"
	case FormatScene3D:
		return "three.js"
	case FormatChart:
		return "D3.js"
	}
	return ""
}

// Concept is the central idea extracted from the source material.
type Concept struct {
	Name       string   `json:"name"`
	Principles []string `json:"principles"`
}

// Image is a decoded, size-bounded image attached to a request.
type Image struct {
	// MIMEType is the sniffed content type, e.g. "image/png".
	MIMEType string

	// Data holds the raw encoded image bytes (not base64).
	Data []byte

	// Width and Height are taken from the image header.
	Width  int
	Height int
}
