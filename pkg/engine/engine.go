package engine

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// ConvertRequest carries one conversion call. InputPath is the local
// source file, OutputPath the desired primary artifact path; engines may
// write additional files next to it. TempDir is scratch space inside the
// task workspace.
type ConvertRequest struct {
	TaskID     int64
	InputPath  string
	OutputPath string
	TempDir    string
	Params     map[string]any
}

// ConvertResult reports one finished conversion. File lists hold
// absolute paths sorted lexically.
type ConvertResult struct {
	Success        bool
	Skipped        bool
	OutputPath     string
	MarkdownFiles  []string
	JSONFiles      []string
	ImageFiles     []string
	OutputFiles    []string
	PagesProcessed int
	Error          *EngineError

	// Batch aggregation, populated for batch_* conversions only.
	FilesTotal     int
	FilesConverted int
	FilesFailed    int
	FailedFiles    []string
}

// Engine is the boundary to an external converter. Implementations run
// child processes today; the interface leaves room for linked libraries
// or RPC backends without touching the pipeline.
type Engine interface {
	// Name identifies the engine in task records and logs.
	Name() string
	// Convert runs one blocking conversion. Failures come back as
	// *EngineError where the cause is classifiable.
	Convert(ctx context.Context, req ConvertRequest) (*ConvertResult, error)
	// ClearCaches releases accelerator memory held between conversions.
	// Called after every conversion, successful or not.
	ClearCaches(ctx context.Context)
}

var officeExts = map[string]bool{
	".doc":  true,
	".docx": true,
	".xls":  true,
	".xlsx": true,
	".ppt":  true,
	".pptx": true,
	".odt":  true,
	".ods":  true,
	".odp":  true,
	".rtf":  true,
}

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".tiff": true,
}

// IsOfficeDocument reports whether the path carries an extension the
// Office renderer accepts.
func IsOfficeDocument(path string) bool {
	return officeExts[strings.ToLower(filepath.Ext(path))]
}

// IsImage reports whether the path carries a supported raster extension.
func IsImage(path string) bool {
	return imageExts[strings.ToLower(filepath.Ext(path))]
}

// IsPDF reports whether the path carries a .pdf extension.
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// Stem returns the base name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Outputs is the classified content of a conversion output directory.
// All lists hold absolute paths sorted lexically.
type Outputs struct {
	Markdown []string
	JSON     []string
	Images   []string
	All      []string
}

// ScanOutputs walks dir and buckets every regular file by kind.
func ScanOutputs(dir string) (Outputs, error) {
	var out Outputs
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		out.All = append(out.All, p)
		switch strings.ToLower(filepath.Ext(p)) {
		case ".md":
			out.Markdown = append(out.Markdown, p)
		case ".json":
			out.JSON = append(out.JSON, p)
		default:
			if IsImage(p) {
				out.Images = append(out.Images, p)
			}
		}
		return nil
	})
	if err != nil {
		return Outputs{}, err
	}
	sort.Strings(out.Markdown)
	sort.Strings(out.JSON)
	sort.Strings(out.Images)
	sort.Strings(out.All)
	return out, nil
}
