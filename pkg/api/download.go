package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"
	"unicode"

	"github.com/go-chi/chi/v5"

	"github.com/docmill/docmill/pkg/objectstore"
	"github.com/docmill/docmill/pkg/storage"
)

// presignExpiry bounds how long a redirect URL keeps working.
const presignExpiry = 15 * time.Minute

// downloadArtifact streams one stored conversion artifact back to the
// caller. With redirect=true it answers with a presigned object-store
// URL instead. The filename segment is matched against the tails of the
// task's s3_urls, raw or percent-decoded, so both the encoded and the
// repaired form of a non-ASCII name resolve.
func (s *Server) downloadArtifact(w http.ResponseWriter, r *http.Request) {
	id, err := taskIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	filename := chi.URLParam(r, "filename")

	task, err := s.store.GetTask(id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "task %d not found", id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load task: %v", err)
		return
	}

	bucket, key, ok := matchArtifact(task.S3URLs, filename)
	if !ok {
		writeError(w, http.StatusNotFound, "task %d has no artifact named %q", id, filename)
		return
	}

	// redirect=true hands the client a presigned URL so large artifacts
	// stream straight from the object store instead of through this
	// process.
	if wantRedirect, _ := strconv.ParseBool(r.URL.Query().Get("redirect")); wantRedirect {
		signed, err := s.artifacts.Presign(r.Context(), bucket, key, presignExpiry)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to presign artifact: %v", err)
			return
		}
		http.Redirect(w, r, signed, http.StatusTemporaryRedirect)
		return
	}

	reader, info, err := s.artifacts.Fetch(r.Context(), bucket, key)
	if err != nil {
		if errors.Is(err, objectstore.ErrObjectNotFound) {
			writeError(w, http.StatusNotFound, "artifact %q is no longer stored", filename)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to open artifact: %v", err)
		return
	}
	defer reader.Close()

	contentType := ""
	if info != nil {
		contentType = info.ContentType
	}
	if contentType == "" {
		contentType = objectstore.ContentTypeFor(path.Base(key))
	}
	w.Header().Set("Content-Type", contentType)
	if info != nil && info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.Header().Set("Content-Disposition", contentDisposition(path.Base(key)))

	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Warn().Err(err).Int64("task_id", id).Str("key", key).Msg("Artifact stream interrupted")
	}
}

// matchArtifact finds the stored object whose final key segment matches
// the requested name. Both sides are compared raw and percent-decoded.
func matchArtifact(urls []string, filename string) (bucket, key string, ok bool) {
	wanted := decodedForms(filename)
	for _, raw := range urls {
		b, k, err := objectstore.ParseURL(raw)
		if err != nil {
			continue
		}
		for _, tail := range decodedForms(path.Base(k)) {
			for _, want := range wanted {
				if tail == want {
					return b, k, true
				}
			}
		}
	}
	return "", "", false
}

func decodedForms(name string) []string {
	forms := []string{name}
	if decoded, err := url.PathUnescape(name); err == nil && decoded != name {
		forms = append(forms, decoded)
	}
	return forms
}

// contentDisposition builds an attachment header that stays inside
// ASCII for legacy clients while carrying the exact UTF-8 name in the
// RFC 5987 parameter.
func contentDisposition(filename string) string {
	if isASCII(filename) {
		return fmt.Sprintf("attachment; filename=%q", filename)
	}
	fallback := "download" + path.Ext(filename)
	if !isASCII(fallback) {
		fallback = "download"
	}
	return fmt.Sprintf("attachment; filename=%q; filename*=UTF-8''%s", fallback, url.PathEscape(filename))
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > unicode.MaxASCII {
			return false
		}
	}
	return true
}
