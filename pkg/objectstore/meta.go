package objectstore

import (
	"encoding/base64"
	"encoding/hex"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/docmill/docmill/pkg/types"
)

// ConversionMetadata is attached to every uploaded artifact so objects
// remain traceable to the task that produced them even after the task
// row is pruned.
type ConversionMetadata struct {
	TaskID           int64
	TaskType         types.TaskType
	OriginalBucket   string
	OriginalFilename string
	OriginalFolder   string
}

// headerValues renders the metadata as S3 user-metadata pairs. Filename
// and folder are stored base64 and hex encoded: S3 metadata values must
// be ASCII and these fields routinely carry CJK text. Both encodings are
// written even for empty values so readers can decode unconditionally.
func (m ConversionMetadata) headerValues(now time.Time) map[string]string {
	meta := map[string]string{
		"task-id":         strconv.FormatInt(m.TaskID, 10),
		"upload-time":     now.UTC().Format(time.RFC3339),
		"conversion-type": string(m.TaskType),
		"original-bucket": m.OriginalBucket,
	}
	addEncoded(meta, "original-filename", m.OriginalFilename)
	addEncoded(meta, "original-folder", m.OriginalFolder)
	return meta
}

func addEncoded(meta map[string]string, key, value string) {
	meta[key+"-base64"] = base64.StdEncoding.EncodeToString([]byte(value))
	meta[key+"-utf8"] = hex.EncodeToString([]byte(value))
}

// contentTypes maps artifact extensions to their MIME types. A fixed
// table keeps uploads identical across hosts regardless of the local
// mime database.
var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".md":   "text/markdown",
	".txt":  "text/plain",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".doc":  "application/msword",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xls":  "application/vnd.ms-excel",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".ppt":  "application/vnd.ms-powerpoint",
	".zip":  "application/zip",
	".json": "application/json",
	".html": "text/html",
	".htm":  "text/html",
}

// ContentTypeFor picks the MIME type for an artifact by extension.
func ContentTypeFor(filename string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}
