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

// DefaultLibreOfficePath is used when no renderer path is configured.
const DefaultLibreOfficePath = "libreoffice"

// LibreOffice renders office documents to PDF through the headless
// LibreOffice binary. Each conversion is one child process; nothing is
// cached between calls.
type LibreOffice struct {
	binary  string
	timeout time.Duration
}

// NewLibreOffice builds the renderer. An empty binary falls back to
// DefaultLibreOfficePath; a zero timeout disables the deadline.
func NewLibreOffice(binary string, timeout time.Duration) *LibreOffice {
	if binary == "" {
		binary = DefaultLibreOfficePath
	}
	return &LibreOffice{binary: binary, timeout: timeout}
}

func (l *LibreOffice) Name() string {
	return "libreoffice"
}

func (l *LibreOffice) Convert(ctx context.Context, req ConvertRequest) (*ConvertResult, error) {
	if _, err := os.Stat(req.InputPath); err != nil {
		return nil, fmt.Errorf("input file not found: %s", req.InputPath)
	}
	if !IsOfficeDocument(req.InputPath) {
		return nil, &EngineError{
			Kind:    KindUnsupportedFormat,
			Message: fmt.Sprintf("not an office document: %s", filepath.Ext(req.InputPath)),
		}
	}

	outDir := filepath.Dir(req.OutputPath)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	logger := log.WithComponent("engine")
	logger.Info().
		Int64("task_id", req.TaskID).
		Str("input", req.InputPath).
		Str("output", req.OutputPath).
		Msg("Rendering office document to PDF")

	cmd := exec.CommandContext(ctx, l.binary,
		"--headless", "--convert-to", "pdf", "--outdir", outDir, req.InputPath)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &EngineError{
				Kind:    KindTimeout,
				Message: fmt.Sprintf("renderer exceeded %s on %s", l.timeout, filepath.Base(req.InputPath)),
			}
		}
		return nil, Classify(fmt.Errorf("renderer failed: %w: %s", err, strings.TrimSpace(string(output))))
	}

	// LibreOffice names the result after the input stem; move it when the
	// requested path differs.
	produced := filepath.Join(outDir, Stem(req.InputPath)+".pdf")
	if _, err := os.Stat(produced); err != nil {
		return nil, &EngineError{
			Kind:    KindUnknown,
			Message: "renderer exited cleanly but produced no pdf",
		}
	}
	if produced != req.OutputPath {
		if err := os.Rename(produced, req.OutputPath); err != nil {
			return nil, fmt.Errorf("failed to move rendered pdf: %w", err)
		}
	}

	return &ConvertResult{
		Success:     true,
		OutputPath:  req.OutputPath,
		OutputFiles: []string{req.OutputPath},
	}, nil
}

// ClearCaches is a no-op: the renderer exits after every conversion and
// holds no accelerator state.
func (l *LibreOffice) ClearCaches(ctx context.Context) {}
