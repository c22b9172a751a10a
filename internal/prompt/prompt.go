// Package prompt renders the instruction text sent to the model for each
// generation task.
package prompt

import (
	"bytes"
	"fmt"
	"net/url"
	"path"
	"strings"
	"text/template"

	"github.com/abhisek/vizlearn/internal/content"
)

// InvalidInputError is returned when a request cannot be rendered.
type InvalidInputError = content.InvalidInputError

// Document is a rendered prompt, sent to the model as one user message.
// It is not modified after Build returns it.
type Document struct {
	Task   content.Task
	Format content.Format

	// Text is the full instruction text.
	Text string

	// Image is attached next to Text for image tasks.
	Image *content.Image
}

// Build renders the template for task from req.
func Build(task content.Task, req content.GenerationRequest) (Document, error) {
	if err := req.Validate(task); err != nil {
		return Document{}, err
	}

	var (
		tmpl *template.Template
		data any
	)
	switch task {
	case content.TaskMCQ:
		tmpl, data = mcqTemplate, newMCQData(req)
	case content.TaskCode:
		tmpl, data = codeTemplate, newCodeData(req)
	case content.TaskImageCode:
		tmpl, data = imageTemplate, newCodeData(req)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return Document{}, fmt.Errorf("render %s prompt: %w", task, err)
	}

	doc := Document{Task: task, Text: buf.String()}
	if task != content.TaskMCQ {
		doc.Format = req.Format
	}
	if task == content.TaskImageCode {
		doc.Image = req.Image
	}
	return doc, nil
}

type mcqData struct {
	ConceptName        string
	Principles         []string
	LearningObjectives []string
	InteractivityNotes string
	Summary            string
}

func newMCQData(req content.GenerationRequest) mcqData {
	d := mcqData{
		LearningObjectives: req.LearningObjectives,
		InteractivityNotes: strings.TrimSpace(req.InteractivityNotes),
		Summary:            req.Text,
	}
	if req.Concept != nil {
		d.ConceptName = strings.TrimSpace(req.Concept.Name)
		d.Principles = req.Concept.Principles
	}
	return d
}

type codeData struct {
	Source             content.SourceKind
	Input              string
	ArticleTitle       string
	Format             content.Format
	Runtime            string
	Contract           string
	ConceptName        string
	Principles         []string
	LearningObjectives []string
}

func newCodeData(req content.GenerationRequest) codeData {
	d := codeData{
		Source:             req.Source,
		Input:              req.Text,
		Format:             req.Format,
		Runtime:            req.Format.Runtime(),
		Contract:           formatContracts[req.Format],
		LearningObjectives: req.LearningObjectives,
	}
	if req.Source == content.SourceWikipedia {
		d.ArticleTitle = ArticleTitle(req.Text)
	}
	if req.Concept != nil {
		d.ConceptName = strings.TrimSpace(req.Concept.Name)
		d.Principles = req.Concept.Principles
	}
	return d
}

// ArticleTitle derives a Wikipedia article title from a topic or article URL.
func ArticleTitle(input string) string {
	s := strings.TrimSpace(input)
	if u, err := url.Parse(s); err == nil && u.Host != "" && strings.Contains(u.Path, "/wiki/") {
		s = path.Base(u.Path)
		if unescaped, err := url.PathUnescape(s); err == nil {
			s = unescaped
		}
	}
	return strings.TrimSpace(strings.ReplaceAll(s, "_", " "))
}

var formatContracts = map[content.Format]string{
	content.FormatDiagram: "A Mermaid diagram definition (flowchart, sequence, class or state diagram). " +
		"Return only the definition text, starting with the diagram type keyword. No markdown fences.",
	content.FormatCanvas2D: "A complete p5.js sketch in global mode defining setup() and draw(). " +
		"Create the canvas with createCanvas(windowWidth, 400). Animate the concept and respond to mouse input where it helps understanding.",
	content.FormatScene3D: "A three.js script that builds a scene, camera and renderer, appends renderer.domElement to document.body " +
		"and runs an animation loop with requestAnimationFrame. Assume THREE is available as a global.",
	content.FormatChart: "A D3.js (v7) script that appends an svg to document.body and draws a chart of data defined inline in the script. " +
		"Assume d3 is available as a global.",
}

var funcs = template.FuncMap{
	"json": func(f content.Format) string { return fmt.Sprintf("%q", string(f)) },
}

const jsonOnly = `Return your response as a single valid JSON object with exactly the structure below. Do not include any explanation, markdown or text outside this JSON object.`

var mcqTemplate = template.Must(template.New("mcq").Funcs(funcs).Parse(`You are an expert educational assessment creator specializing in high-quality multiple-choice questions for learning platforms. Create questions based on the following educational content.

CONCEPT: {{if .ConceptName}}{{.ConceptName}}{{else}}The topic provided in the summary{{end}}

KEY PRINCIPLES:
{{if .Principles}}{{range .Principles}}- {{.}}
{{end}}{{else}}Extract the key principles from the summary.
{{end}}
LEARNING OBJECTIVES:
{{if .LearningObjectives}}{{range .LearningObjectives}}- {{.}}
{{end}}{{else}}Create appropriate learning objectives based on the summary.
{{end}}{{if .InteractivityNotes}}
VISUALIZATION NOTES:
{{.InteractivityNotes}}
{{end}}
SUMMARY:
{{.Summary}}

ASSESSMENT REQUIREMENTS:
1. Create exactly 5 multiple-choice questions that align with the learning objectives.
2. Each question has exactly 4 options and exactly one correct answer.
3. Cover these cognitive levels of Bloom's Taxonomy:
   - Recall: exactly 1 question
   - Comprehension: 1 to 2 questions
   - Application: 1 to 2 questions
   - Synthesis or Evaluation: at most 1 question
4. Give a brief explanation of why the correct answer is right.
5. Test conceptual understanding rather than memorized facts.
6. Pitch the questions at high school or undergraduate level.
7. At least one question must test the ability to interpret the visualization.

OUTPUT FORMAT:
` + jsonOnly + `
correctAnswer is the zero-based index of the correct option.

{
  "questions": [
    {
      "question": "Question text?",
      "options": ["Option A", "Option B", "Option C", "Option D"],
      "correctAnswer": 0,
      "explanation": "Why the correct answer is right",
      "bloomsLevel": "recall | comprehension | application | analysis | synthesis | evaluation",
      "relatedLearningObjective": "The learning objective this question addresses"
    }
  ]
}
`))

const codeOutputSection = `
TARGET FORMAT: {{.Format}} ({{.Runtime}})
{{.Contract}}

OUTPUT FORMAT:
` + jsonOnly + `
The code goes under the key {{json .Format}} inside codeOutputs, as a single JSON string.

{
  "summary": "A plain-language summary of the material in 2 to 4 short paragraphs",
  "concept": {
    "name": "Name of the central concept",
    "principles": ["Key principle", "Key principle"]
  },
  "learningObjectives": ["Learners will be able to ..."],
  "interactivityNotes": "How the learner interacts with the visualization and what to observe",
  "codeOutputs": {
    {{json .Format}}: "source code"
  }
}
`

const conceptSection = `
CONCEPT: {{if .ConceptName}}{{.ConceptName}}{{else}}Identify the central concept yourself.{{end}}
{{if .Principles}}
KEY PRINCIPLES:
{{range .Principles}}- {{.}}
{{end}}{{end}}{{if .LearningObjectives}}
LEARNING OBJECTIVES:
{{range .LearningObjectives}}- {{.}}
{{end}}{{end}}`

var codeTemplate = template.Must(template.New("code").Funcs(funcs).Parse(`You are an expert educator and creative coder. Turn the source material below into a short lesson and an interactive visualization that teaches its central concept.
` + conceptSection + `
{{if eq .Source "wikipedia"}}SOURCE (Wikipedia article "{{.ArticleTitle}}"):
Work from your knowledge of this Wikipedia article. The reference as given was:
{{.Input}}
{{else}}SOURCE:
{{.Input}}
{{end}}` + codeOutputSection))

var imageTemplate = template.Must(template.New("image").Funcs(funcs).Parse(`You are an expert educator and creative coder. The attached image shows educational material: a diagram, a textbook page, handwritten notes or a photo of a phenomenon. Work out what it teaches, then write a short lesson and an interactive visualization of its central concept.
` + conceptSection + `
SOURCE:
The attached image. Describe what matters in it inside the summary; do not transcribe it verbatim.
` + codeOutputSection))
