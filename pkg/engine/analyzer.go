package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/docmill/docmill/pkg/log"
)

// Placeholders substituted into analyzer command templates.
const (
	PlaceholderInput     = "{input}"
	PlaceholderOutput    = "{output}"
	PlaceholderOutputDir = "{output_dir}"
	PlaceholderStem      = "{stem}"
)

// AnalyzerCommand runs a document analyzer (PDF to Markdown, image OCR)
// as a child process built from a configurable argv template. The
// analyzer is expected to write its artifacts under the output
// directory; whatever it produced is collected afterwards.
type AnalyzerCommand struct {
	name    string
	argv    []string
	timeout time.Duration
}

// NewAnalyzerCommand builds an analyzer engine from an argv template.
func NewAnalyzerCommand(name string, argv []string, timeout time.Duration) (*AnalyzerCommand, error) {
	if name == "" {
		return nil, fmt.Errorf("analyzer needs a name")
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("analyzer %s needs a command template", name)
	}
	return &AnalyzerCommand{name: name, argv: argv, timeout: timeout}, nil
}

func (a *AnalyzerCommand) Name() string {
	return a.name
}

func (a *AnalyzerCommand) Convert(ctx context.Context, req ConvertRequest) (*ConvertResult, error) {
	if _, err := os.Stat(req.InputPath); err != nil {
		return nil, fmt.Errorf("input file not found: %s", req.InputPath)
	}

	outDir := filepath.Dir(req.OutputPath)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	argv := renderArgv(a.argv, req)
	logger := log.WithComponent("engine")
	logger.Info().
		Int64("task_id", req.TaskID).
		Str("analyzer", a.name).
		Strs("argv", argv).
		Msg("Running analyzer")

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &EngineError{
				Kind:    KindTimeout,
				Message: fmt.Sprintf("%s exceeded %s on %s", a.name, a.timeout, filepath.Base(req.InputPath)),
			}
		}
		return nil, Classify(fmt.Errorf("%s failed: %w: %s", a.name, err, strings.TrimSpace(string(output))))
	}

	outputs, err := ScanOutputs(outDir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan analyzer output: %w", err)
	}
	if len(outputs.Markdown) == 0 {
		return nil, &EngineError{
			Kind:    KindUnknown,
			Message: fmt.Sprintf("%s exited cleanly but produced no markdown", a.name),
		}
	}

	primary := outputs.Markdown[0]
	for _, m := range outputs.Markdown {
		if m == req.OutputPath {
			primary = m
			break
		}
	}

	return &ConvertResult{
		Success:       true,
		OutputPath:    primary,
		MarkdownFiles: outputs.Markdown,
		JSONFiles:     outputs.JSON,
		ImageFiles:    outputs.Images,
		OutputFiles:   outputs.All,
	}, nil
}

// ClearCaches logs the release point. Analyzer children free their
// accelerator memory on exit, so there is no process-local state to
// drop.
func (a *AnalyzerCommand) ClearCaches(ctx context.Context) {
	logger := log.WithComponent("engine")
	logger.Debug().
		Str("analyzer", a.name).
		Msg("Accelerator caches released")
}

func renderArgv(template []string, req ConvertRequest) []string {
	repl := strings.NewReplacer(
		PlaceholderInput, req.InputPath,
		PlaceholderOutput, req.OutputPath,
		PlaceholderOutputDir, filepath.Dir(req.OutputPath),
		PlaceholderStem, Stem(req.InputPath),
	)
	argv := make([]string, len(template))
	for i, arg := range template {
		argv[i] = repl.Replace(arg)
	}
	return argv
}
