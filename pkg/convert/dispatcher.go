package convert

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/docmill/docmill/pkg/engine"
	"github.com/docmill/docmill/pkg/log"
	"github.com/docmill/docmill/pkg/types"
)

// Request describes one conversion to route. InputPath is a file for
// single conversions and a directory for batch types; OutputDir receives
// the artifact tree; TempDir is workspace scratch space.
type Request struct {
	TaskID    int64
	TaskType  types.TaskType
	InputPath string
	OutputDir string
	TempDir   string
	Params    map[string]any
}

// Dispatcher routes conversions to the right engine chain. It is the
// only component that knows which engine serves which task type.
type Dispatcher struct {
	renderer    engine.Engine
	pdfAnalyzer engine.Engine
	ocrAnalyzer engine.Engine
}

// NewDispatcher wires the three engine roles: the office renderer, the
// PDF analyzer, and the image OCR analyzer.
func NewDispatcher(renderer, pdfAnalyzer, ocrAnalyzer engine.Engine) *Dispatcher {
	return &Dispatcher{
		renderer:    renderer,
		pdfAnalyzer: pdfAnalyzer,
		ocrAnalyzer: ocrAnalyzer,
	}
}

// Convert runs one conversion to completion. Blocking; the caller is a
// dedicated conversion worker, never a coordinator goroutine. Engine
// caches are cleared after every call, successful or not.
func (d *Dispatcher) Convert(ctx context.Context, req Request) (*engine.ConvertResult, error) {
	engines := d.enginesFor(req.TaskType)
	if len(engines) == 0 {
		return nil, fmt.Errorf("unsupported task type: %s", req.TaskType)
	}
	defer func() {
		for _, e := range engines {
			e.ClearCaches(ctx)
		}
	}()

	start := time.Now()
	result, err := d.route(ctx, req)
	elapsed := time.Since(start)

	logger := log.WithComponent("dispatcher")
	if err != nil {
		logger.Warn().
			Int64("task_id", req.TaskID).
			Str("task_type", string(req.TaskType)).
			Dur("elapsed", elapsed).
			Err(err).
			Msg("Conversion failed")
		return nil, err
	}
	logger.Info().
		Int64("task_id", req.TaskID).
		Str("task_type", string(req.TaskType)).
		Dur("elapsed", elapsed).
		Bool("skipped", result.Skipped).
		Msg("Conversion finished")
	return result, nil
}

// EngineName reports which engine produces the final artifact for a
// task type, for the task's engine_name record.
func (d *Dispatcher) EngineName(taskType types.TaskType) string {
	engines := d.enginesFor(taskType)
	if len(engines) == 0 {
		return ""
	}
	return engines[len(engines)-1].Name()
}

func (d *Dispatcher) enginesFor(taskType types.TaskType) []engine.Engine {
	switch taskType {
	case types.TaskTypeOfficeToPDF, types.TaskTypeBatchOfficeToPDF:
		return []engine.Engine{d.renderer}
	case types.TaskTypePDFToMarkdown, types.TaskTypeBatchPDFToMarkdown:
		return []engine.Engine{d.pdfAnalyzer}
	case types.TaskTypeOfficeToMarkdown, types.TaskTypeBatchOfficeToMarkdown:
		return []engine.Engine{d.renderer, d.pdfAnalyzer}
	case types.TaskTypeImageToMarkdown, types.TaskTypeBatchImageToMarkdown:
		return []engine.Engine{d.ocrAnalyzer}
	}
	return nil
}

func (d *Dispatcher) route(ctx context.Context, req Request) (*engine.ConvertResult, error) {
	if req.TaskType.IsBatch() {
		return d.batch(ctx, req)
	}
	switch req.TaskType {
	case types.TaskTypeOfficeToPDF:
		return d.officeToPDF(ctx, req)
	case types.TaskTypePDFToMarkdown:
		return d.pdfToMarkdown(ctx, req)
	case types.TaskTypeOfficeToMarkdown:
		return d.officeToMarkdown(ctx, req)
	case types.TaskTypeImageToMarkdown:
		return d.imageToMarkdown(ctx, req)
	}
	return nil, fmt.Errorf("unsupported task type: %s", req.TaskType)
}

func (d *Dispatcher) officeToPDF(ctx context.Context, req Request) (*engine.ConvertResult, error) {
	return d.renderer.Convert(ctx, engine.ConvertRequest{
		TaskID:     req.TaskID,
		InputPath:  req.InputPath,
		OutputPath: filepath.Join(req.OutputDir, engine.Stem(req.InputPath)+".pdf"),
		TempDir:    req.TempDir,
		Params:     req.Params,
	})
}

func (d *Dispatcher) pdfToMarkdown(ctx context.Context, req Request) (*engine.ConvertResult, error) {
	if !engine.IsPDF(req.InputPath) {
		return nil, &engine.EngineError{
			Kind:    engine.KindUnsupportedFormat,
			Message: fmt.Sprintf("expected a pdf, got %s", filepath.Ext(req.InputPath)),
		}
	}

	outPath := filepath.Join(req.OutputDir, engine.Stem(req.InputPath)+".md")
	if !BoolParam(req.Params, "force_reprocess") {
		if _, err := os.Stat(outPath); err == nil {
			outputs, err := engine.ScanOutputs(req.OutputDir)
			if err != nil {
				return nil, fmt.Errorf("failed to scan existing output: %w", err)
			}
			logger := log.WithComponent("dispatcher")
			logger.Info().
				Int64("task_id", req.TaskID).
				Str("output", outPath).
				Msg("Markdown already present, skipping conversion")
			return &engine.ConvertResult{
				Success:       true,
				Skipped:       true,
				OutputPath:    outPath,
				MarkdownFiles: outputs.Markdown,
				JSONFiles:     outputs.JSON,
				ImageFiles:    outputs.Images,
				OutputFiles:   outputs.All,
			}, nil
		}
	}

	return d.pdfAnalyzer.Convert(ctx, engine.ConvertRequest{
		TaskID:     req.TaskID,
		InputPath:  req.InputPath,
		OutputPath: outPath,
		TempDir:    req.TempDir,
		Params:     req.Params,
	})
}

// officeToMarkdown composes the renderer and the PDF analyzer through a
// temporary PDF in the workspace scratch area, so the intermediate is
// swept by partial cleanup and never uploaded.
func (d *Dispatcher) officeToMarkdown(ctx context.Context, req Request) (*engine.ConvertResult, error) {
	if err := os.MkdirAll(req.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	tempPDF := filepath.Join(req.TempDir, engine.Stem(req.InputPath)+".pdf")

	if _, err := d.renderer.Convert(ctx, engine.ConvertRequest{
		TaskID:     req.TaskID,
		InputPath:  req.InputPath,
		OutputPath: tempPDF,
		TempDir:    req.TempDir,
		Params:     req.Params,
	}); err != nil {
		return nil, fmt.Errorf("office stage: %w", err)
	}

	mdReq := req
	mdReq.InputPath = tempPDF
	result, err := d.pdfToMarkdown(ctx, mdReq)
	if err != nil {
		return nil, fmt.Errorf("markdown stage: %w", err)
	}
	return result, nil
}

func (d *Dispatcher) imageToMarkdown(ctx context.Context, req Request) (*engine.ConvertResult, error) {
	if !engine.IsImage(req.InputPath) {
		return nil, &engine.EngineError{
			Kind:    engine.KindUnsupportedFormat,
			Message: fmt.Sprintf("expected an image, got %s", filepath.Ext(req.InputPath)),
		}
	}

	return d.ocrAnalyzer.Convert(ctx, engine.ConvertRequest{
		TaskID:     req.TaskID,
		InputPath:  req.InputPath,
		OutputPath: filepath.Join(req.OutputDir, engine.Stem(req.InputPath)+".md"),
		TempDir:    req.TempDir,
		Params:     req.Params,
	})
}

// batch walks the input directory and dispatches the matching single
// conversion per file, preserving relative paths in the output tree.
// Per-file failures are counted, not fatal.
func (d *Dispatcher) batch(ctx context.Context, req Request) (*engine.ConvertResult, error) {
	single, ok := singleTypeFor(req.TaskType)
	if !ok {
		return nil, fmt.Errorf("unsupported task type: %s", req.TaskType)
	}

	info, err := os.Stat(req.InputPath)
	if err != nil {
		return nil, fmt.Errorf("input directory not found: %s", req.InputPath)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("batch input %s is not a directory", req.InputPath)
	}

	var pattern *regexp.Regexp
	if expr := StringParam(req.Params, "file_pattern"); expr != "" {
		pattern, err = regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid file_pattern %q: %w", expr, err)
		}
	}

	files, err := listInputs(req.InputPath, BoolParam(req.Params, "recursive"))
	if err != nil {
		return nil, fmt.Errorf("failed to list batch inputs: %w", err)
	}

	agg := &engine.ConvertResult{Success: true, OutputPath: req.OutputDir}
	for _, file := range files {
		if !acceptsFile(single, file) {
			continue
		}
		if pattern != nil && !pattern.MatchString(filepath.Base(file)) {
			continue
		}
		agg.FilesTotal++

		rel, err := filepath.Rel(req.InputPath, file)
		if err != nil {
			rel = filepath.Base(file)
		}
		sub := Request{
			TaskID:    req.TaskID,
			TaskType:  single,
			InputPath: file,
			OutputDir: filepath.Join(req.OutputDir, filepath.Dir(rel)),
			TempDir:   filepath.Join(req.TempDir, filepath.Dir(rel)),
			Params:    req.Params,
		}
		result, err := d.route(ctx, sub)
		for _, e := range d.enginesFor(single) {
			e.ClearCaches(ctx)
		}
		if err != nil || !result.Success {
			if err == nil {
				err = result.Error
			}
			logger := log.WithComponent("dispatcher")
			logger.Warn().
				Int64("task_id", req.TaskID).
				Str("file", file).
				Err(err).
				Msg("Batch entry failed")
			agg.FilesFailed++
			agg.FailedFiles = append(agg.FailedFiles, file)
			continue
		}

		agg.FilesConverted++
		agg.MarkdownFiles = append(agg.MarkdownFiles, result.MarkdownFiles...)
		agg.JSONFiles = append(agg.JSONFiles, result.JSONFiles...)
		agg.ImageFiles = append(agg.ImageFiles, result.ImageFiles...)
		agg.OutputFiles = append(agg.OutputFiles, result.OutputFiles...)
	}

	sort.Strings(agg.MarkdownFiles)
	sort.Strings(agg.JSONFiles)
	sort.Strings(agg.ImageFiles)
	sort.Strings(agg.OutputFiles)
	return agg, nil
}

func singleTypeFor(taskType types.TaskType) (types.TaskType, bool) {
	switch taskType {
	case types.TaskTypeBatchOfficeToPDF:
		return types.TaskTypeOfficeToPDF, true
	case types.TaskTypeBatchPDFToMarkdown:
		return types.TaskTypePDFToMarkdown, true
	case types.TaskTypeBatchOfficeToMarkdown:
		return types.TaskTypeOfficeToMarkdown, true
	case types.TaskTypeBatchImageToMarkdown:
		return types.TaskTypeImageToMarkdown, true
	}
	return "", false
}

func acceptsFile(single types.TaskType, path string) bool {
	switch single {
	case types.TaskTypeOfficeToPDF, types.TaskTypeOfficeToMarkdown:
		return engine.IsOfficeDocument(path)
	case types.TaskTypePDFToMarkdown:
		return engine.IsPDF(path)
	case types.TaskTypeImageToMarkdown:
		return engine.IsImage(path)
	}
	return false
}

func listInputs(dir string, recursive bool) ([]string, error) {
	var files []string
	if recursive {
		err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if !d.IsDir() {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				files = append(files, filepath.Join(dir, entry.Name()))
			}
		}
	}
	sort.Strings(files)
	return files, nil
}
