package cmd

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/vizlearn/internal/content"
	"github.com/abhisek/vizlearn/internal/imagedata"
	"github.com/abhisek/vizlearn/internal/logger"
	"github.com/abhisek/vizlearn/internal/pipeline"
)

var generateCmd = &cobra.Command{
	Use:   "generate [input]",
	Short: "Run one generation and print the result as JSON",
	Long: "Runs a single generation against the configured LLM provider.\n\n" +
		"The input is taken from the argument, or from stdin when the argument is \"-\" or absent.\n" +
		"For --task image, pass the image path with --image instead.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if !cfg.LLM.HasKey() {
			return fmt.Errorf("no API key configured for provider %q", cfg.LLM.Provider)
		}

		verbose, _ := cmd.Flags().GetBool("verbose")
		log := logger.NewNop()
		if verbose {
			log, err = logger.New("development", "debug")
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
		}

		task, req, err := buildRequest(cmd, args, cfg.Image.Options())
		if err != nil {
			return err
		}

		d, err := buildDeps(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer d.close()

		out, err := d.orch.Run(cmd.Context(), task, req)
		if err != nil {
			var pe *pipeline.Error
			if errors.As(err, &pe) && pe.Details != "" && verbose {
				fmt.Fprintln(os.Stderr, pe.Details)
			}
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(generateOutput{
			Task:      task,
			Result:    out.Result,
			Warnings:  warningStrings(out),
			Model:     out.Model,
			LatencyMs: out.Timeline.Total().Milliseconds(),
			StagesMs:  stageMillis(out.Timeline),
		})
	},
}

type generateOutput struct {
	Task      content.Task   `json:"task"`
	Result    content.Result `json:"result"`
	Warnings  []string       `json:"warnings,omitempty"`
	Model     string         `json:"model"`
	LatencyMs int64          `json:"latencyMs"`

	// StagesMs is the time spent in each pipeline stage.
	StagesMs map[pipeline.Stage]int64 `json:"stagesMs"`
}

func stageMillis(tl pipeline.Timeline) map[pipeline.Stage]int64 {
	out := make(map[pipeline.Stage]int64)
	for stage, d := range tl.Durations() {
		out[stage] = d.Milliseconds()
	}
	return out
}

func warningStrings(out *pipeline.Outcome) []string {
	var ws []string
	for _, w := range out.Warnings {
		ws = append(ws, w.String())
	}
	return ws
}

// buildRequest maps the command line onto a task and request.
func buildRequest(cmd *cobra.Command, args []string, imgOpts imagedata.Options) (content.Task, content.GenerationRequest, error) {
	taskName, _ := cmd.Flags().GetString("task")
	formatName, _ := cmd.Flags().GetString("format")
	sourceName, _ := cmd.Flags().GetString("source")
	imagePath, _ := cmd.Flags().GetString("image")

	format := content.Format(formatName)
	if f, ok := content.ParseFormat(formatName); ok {
		format = f
	}

	switch taskName {
	case "image":
		if imagePath == "" {
			return "", content.GenerationRequest{}, fmt.Errorf("--image is required for --task image")
		}
		raw, err := os.ReadFile(imagePath)
		if err != nil {
			return "", content.GenerationRequest{}, fmt.Errorf("read image: %w", err)
		}
		img, err := imagedata.Decode(base64.StdEncoding.EncodeToString(raw), imgOpts)
		if err != nil {
			return "", content.GenerationRequest{}, err
		}
		return content.TaskImageCode, content.GenerationRequest{Source: content.SourceImage, Image: img, Format: format}, nil

	case "code", "mcq":
		text, err := readInput(cmd, args)
		if err != nil {
			return "", content.GenerationRequest{}, err
		}
		if taskName == "mcq" {
			return content.TaskMCQ, content.GenerationRequest{Source: content.SourceText, Text: text}, nil
		}
		source, ok := content.ParseSourceKind(sourceName)
		if !ok {
			return "", content.GenerationRequest{}, fmt.Errorf("unknown source %q", sourceName)
		}
		return content.TaskCode, content.GenerationRequest{Source: source, Text: text, Format: format}, nil
	}
	return "", content.GenerationRequest{}, fmt.Errorf("unknown task %q (want code, image or mcq)", taskName)
}

func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func init() {
	registerGenerateFlags(generateCmd)
}

func registerGenerateFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("task", "t", "code", "Task: code, image or mcq")
	cmd.Flags().StringP("format", "f", string(content.FormatCanvas2D), "Target format: diagram, canvas2d, scene3d or chart")
	cmd.Flags().StringP("source", "s", string(content.SourceText), "Input source for --task code: text or wikipedia")
	cmd.Flags().String("image", "", "Image file for --task image")
	cmd.Flags().BoolP("verbose", "v", false, "Log pipeline stages and print raw model output on failure")
}
