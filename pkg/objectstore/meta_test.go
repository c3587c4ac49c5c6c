package objectstore

import (
	"encoding/base64"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docmill/docmill/pkg/types"
)

func TestConversionMetadataHeaderValues(t *testing.T) {
	meta := ConversionMetadata{
		TaskID:           17,
		TaskType:         types.TaskTypePDFToMarkdown,
		OriginalBucket:   "docs",
		OriginalFilename: "手册.pdf",
		OriginalFolder:   "浙音文件",
	}
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	values := meta.headerValues(now)
	assert.Equal(t, "17", values["task-id"])
	assert.Equal(t, "2026-03-14T09:30:00Z", values["upload-time"])
	assert.Equal(t, "pdf_to_markdown", values["conversion-type"])
	assert.Equal(t, "docs", values["original-bucket"])

	name, err := base64.StdEncoding.DecodeString(values["original-filename-base64"])
	require.NoError(t, err)
	assert.Equal(t, "手册.pdf", string(name))

	nameHex, err := hex.DecodeString(values["original-filename-utf8"])
	require.NoError(t, err)
	assert.Equal(t, "手册.pdf", string(nameHex))

	folder, err := base64.StdEncoding.DecodeString(values["original-folder-base64"])
	require.NoError(t, err)
	assert.Equal(t, "浙音文件", string(folder))
}

func TestConversionMetadataEmptyFieldsStillEncoded(t *testing.T) {
	meta := ConversionMetadata{TaskID: 3, TaskType: types.TaskTypeOfficeToPDF}
	values := meta.headerValues(time.Now())

	for _, key := range []string{
		"original-filename-base64", "original-filename-utf8",
		"original-folder-base64", "original-folder-utf8",
	} {
		v, ok := values[key]
		assert.True(t, ok, "missing %s", key)
		assert.Empty(t, v)
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"rep.pdf", "application/pdf"},
		{"rep.MD", "text/markdown"},
		{"data.json", "application/json"},
		{"slides.pptx", "application/vnd.openxmlformats-officedocument.presentationml.presentation"},
		{"page.htm", "text/html"},
		{"scan.png", "application/octet-stream"},
		{"noext", "application/octet-stream"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ContentTypeFor(tt.filename), "filename %s", tt.filename)
	}
}
