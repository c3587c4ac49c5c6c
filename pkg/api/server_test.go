package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docmill/docmill/pkg/config"
	"github.com/docmill/docmill/pkg/convert"
	"github.com/docmill/docmill/pkg/events"
	"github.com/docmill/docmill/pkg/objectstore"
	"github.com/docmill/docmill/pkg/queue"
	"github.com/docmill/docmill/pkg/scheduler"
	"github.com/docmill/docmill/pkg/storage"
	"github.com/docmill/docmill/pkg/types"
	"github.com/docmill/docmill/pkg/workspace"
)

// fakeGateway is an in-memory object store serving the download and
// health endpoints.
type fakeGateway struct {
	mu            sync.Mutex
	objects       map[string][]byte
	bucketMissing bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{objects: map[string][]byte{}}
}

func (g *fakeGateway) seed(bucket, key string, content []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.objects[bucket+"/"+key] = content
}

func (g *fakeGateway) Download(_ context.Context, bucket, key, _ string) (*objectstore.ObjectInfo, error) {
	return nil, fmt.Errorf("%w: s3://%s/%s", objectstore.ErrObjectNotFound, bucket, key)
}

func (g *fakeGateway) Exists(_ context.Context, bucket, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.objects[bucket+"/"+key]
	return ok, nil
}

func (g *fakeGateway) BucketExists(context.Context, string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.bucketMissing, nil
}

func (g *fakeGateway) Fetch(_ context.Context, bucket, key string) (io.ReadCloser, *objectstore.ObjectInfo, error) {
	g.mu.Lock()
	content, ok := g.objects[bucket+"/"+key]
	g.mu.Unlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: s3://%s/%s", objectstore.ErrObjectNotFound, bucket, key)
	}
	return io.NopCloser(bytes.NewReader(content)), &objectstore.ObjectInfo{Size: int64(len(content))}, nil
}

func (g *fakeGateway) UploadFile(_ context.Context, _, bucket, key string, _ objectstore.ConversionMetadata) (*objectstore.Upload, error) {
	return &objectstore.Upload{Bucket: bucket, Key: key, URL: objectstore.ObjectURL(bucket, key)}, nil
}

func (g *fakeGateway) UploadDirectory(_ context.Context, _, _, _ string, _ objectstore.ConversionMetadata) (*objectstore.DirUpload, error) {
	return &objectstore.DirUpload{}, nil
}

func (g *fakeGateway) Presign(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	return "https://signed.example/" + bucket + "/" + key, nil
}

// apiRig assembles a server over a throwaway sqlite store and an
// unstarted scheduler.
type apiRig struct {
	srv    *Server
	store  *storage.SQLStore
	fabric *queue.Fabric
	gw     *fakeGateway
}

func newAPIRig(t *testing.T, mutate ...func(*Options)) *apiRig {
	t.Helper()
	base := t.TempDir()

	cfg := config.Default()
	cfg.WorkspaceBaseDir = filepath.Join(base, "workspaces")
	cfg.TempDir = filepath.Join(base, "temp")

	store, err := storage.NewSQLStore(storage.DialectSQLite, filepath.Join(base, "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	spaces, err := workspace.NewManager(cfg.WorkspaceBaseDir, cfg.TempDir)
	require.NoError(t, err)

	fabric := queue.NewFabric(cfg.QueueCapacity)
	gw := newFakeGateway()
	broker := events.NewBroker()

	opts := Options{
		Config: cfg,
		Store:  store,
		Fabric: fabric,
		Scheduler: scheduler.New(scheduler.Options{
			Config:       cfg,
			Store:        store,
			Fabric:       fabric,
			Workspaces:   spaces,
			Downloads:    gw,
			Uploads:      gw,
			UploadBucket: "ai-file",
			Dispatcher:   convert.NewDispatcher(nil, nil, nil),
			Broker:       broker,
		}),
		Artifacts: gw,
		Broker:    broker,
	}
	for _, fn := range mutate {
		fn(&opts)
	}

	return &apiRig{srv: NewServer(opts), store: store, fabric: fabric, gw: gw}
}

func (r *apiRig) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (r *apiRig) get(path string) *httptest.ResponseRecorder {
	return r.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (r *apiRig) postCreate(t *testing.T, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartForm(t, fields, false)
	req := httptest.NewRequest(http.MethodPost, "/api/tasks/create", body)
	req.Header.Set("Content-Type", contentType)
	return r.do(req)
}

// seedTask inserts a row directly and optionally drives it to a
// terminal status the way the pipeline would.
func (r *apiRig) seedTask(t *testing.T, status types.TaskStatus, errMsg string) int64 {
	t.Helper()
	id, err := r.store.CreateTask(&types.Task{
		TaskType:      types.TaskTypePDFToMarkdown,
		Status:        types.TaskStatusPending,
		Priority:      types.TaskPriorityNormal,
		BucketName:    "reports",
		FilePath:      "docs/rep.pdf",
		MaxRetryCount: types.DefaultMaxRetryCount,
	})
	require.NoError(t, err)

	if status != types.TaskStatusPending {
		var msgPtr *string
		if errMsg != "" {
			msgPtr = &errMsg
		}
		require.NoError(t, r.store.UpdateTaskStatus(id, status, msgPtr))
	}
	return id
}

func (r *apiRig) drainIntake() []int64 {
	var ids []int64
	for {
		id, ok := r.fabric.TryTake(queue.LaneIntake)
		if !ok {
			return ids
		}
		ids = append(ids, id)
	}
}

func multipartForm(t *testing.T, fields map[string]string, withFile bool) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if withFile {
		fw, err := mw.CreateFormFile("file_upload", "doc.pdf")
		require.NoError(t, err)
		_, err = fw.Write([]byte("%PDF-1.7"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), "body: %s", rec.Body.String())
}

func TestCreateTaskStoresPendingRow(t *testing.T) {
	rig := newAPIRig(t)

	rec := rig.postCreate(t, map[string]string{
		"task_type":    "pdf_to_markdown",
		"priority":     "high",
		"bucket_name":  "reports",
		"file_path":    "docs/rep.pdf",
		"params":       `{"force_reprocess": true}`,
		"platform":     "wiki",
		"callback_url": "https://caller.example/hook",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp taskActionResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, fmt.Sprintf("Document conversion task %d created successfully", resp.TaskID), resp.Message)

	task, err := rig.store.GetTask(resp.TaskID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskTypePDFToMarkdown, task.TaskType)
	assert.Equal(t, types.TaskStatusPending, task.Status)
	assert.Equal(t, types.TaskPriorityHigh, task.Priority)
	assert.Equal(t, "reports", task.BucketName)
	assert.Equal(t, "docs/rep.pdf", task.FilePath)
	assert.Equal(t, "wiki", task.Platform)
	assert.Equal(t, "https://caller.example/hook", task.CallbackURL)
	assert.Equal(t, types.DefaultMaxRetryCount, task.MaxRetryCount)
	assert.Equal(t, true, task.Params["force_reprocess"])

	assert.Equal(t, []int64{resp.TaskID}, rig.drainIntake(), "create must hint the fetcher")
}

func TestCreateTaskDefaultsPriorityToNormal(t *testing.T) {
	rig := newAPIRig(t)

	rec := rig.postCreate(t, map[string]string{
		"task_type":   "office_to_pdf",
		"bucket_name": "reports",
		"file_path":   "docs/slides.pptx",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp taskActionResponse
	decodeBody(t, rec, &resp)
	task, err := rig.store.GetTask(resp.TaskID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskPriorityNormal, task.Priority)
}

func TestCreateTaskValidation(t *testing.T) {
	tests := []struct {
		name     string
		fields   map[string]string
		wantCode int
		wantErr  string
	}{
		{
			name:     "missing task_type",
			fields:   map[string]string{"bucket_name": "b", "file_path": "k.pdf"},
			wantCode: http.StatusBadRequest,
			wantErr:  "task_type is required",
		},
		{
			name:     "unknown task_type",
			fields:   map[string]string{"task_type": "pdf_to_docx", "bucket_name": "b", "file_path": "k.pdf"},
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid task_type",
		},
		{
			name:     "unknown priority",
			fields:   map[string]string{"task_type": "pdf_to_markdown", "priority": "urgent", "bucket_name": "b", "file_path": "k.pdf"},
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid priority",
		},
		{
			name:     "no source",
			fields:   map[string]string{"task_type": "pdf_to_markdown"},
			wantCode: http.StatusBadRequest,
			wantErr:  "input source is required",
		},
		{
			name: "two sources",
			fields: map[string]string{
				"task_type": "pdf_to_markdown", "bucket_name": "b", "file_path": "k.pdf", "local_path": "/data/k.pdf",
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "mutually exclusive",
		},
		{
			name:     "file_url rejected",
			fields:   map[string]string{"task_type": "pdf_to_markdown", "file_url": "https://cdn.example/k.pdf"},
			wantCode: http.StatusBadRequest,
			wantErr:  "file_url inputs are not supported",
		},
		{
			name:     "batch needs local directory",
			fields:   map[string]string{"task_type": "batch_pdf_to_markdown", "bucket_name": "b", "file_path": "docs/"},
			wantCode: http.StatusBadRequest,
			wantErr:  "local_path directory",
		},
		{
			name:     "params not json",
			fields:   map[string]string{"task_type": "pdf_to_markdown", "bucket_name": "b", "file_path": "k.pdf", "params": "{broken"},
			wantCode: http.StatusBadRequest,
			wantErr:  "params is not valid JSON",
		},
		{
			name: "bad file_pattern",
			fields: map[string]string{
				"task_type": "batch_pdf_to_markdown", "local_path": "/data/in",
				"params": `{"file_pattern": "[unterminated"}`,
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid file_pattern",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := newAPIRig(t)
			rec := rig.postCreate(t, tt.fields)

			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			var resp errorResponse
			decodeBody(t, rec, &resp)
			assert.Contains(t, resp.Error, tt.wantErr)
			assert.Empty(t, rig.drainIntake(), "rejected requests must not enqueue")
		})
	}
}

func TestCreateTaskRejectsDirectUpload(t *testing.T) {
	rig := newAPIRig(t)

	body, contentType := multipartForm(t, map[string]string{"task_type": "pdf_to_markdown"}, true)
	req := httptest.NewRequest(http.MethodPost, "/api/tasks/create", body)
	req.Header.Set("Content-Type", contentType)
	rec := rig.do(req)

	require.Equal(t, http.StatusNotImplemented, rec.Code, rec.Body.String())
	var resp errorResponse
	decodeBody(t, rec, &resp)
	assert.Contains(t, resp.Error, "direct file upload is not supported")
}

func TestGetTask(t *testing.T) {
	rig := newAPIRig(t)
	id := rig.seedTask(t, types.TaskStatusPending, "")

	rec := rig.get(fmt.Sprintf("/api/tasks/%d", id))
	require.Equal(t, http.StatusOK, rec.Code)

	var task types.Task
	decodeBody(t, rec, &task)
	assert.Equal(t, id, task.ID)
	assert.Equal(t, types.TaskTypePDFToMarkdown, task.TaskType)
	assert.Equal(t, "reports", task.BucketName)

	rec = rig.get("/api/tasks/9999")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = rig.get("/api/tasks/rep.pdf")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTasksFiltersAndPagination(t *testing.T) {
	rig := newAPIRig(t)
	rig.seedTask(t, types.TaskStatusPending, "")
	rig.seedTask(t, types.TaskStatusFailed, "engine crashed")
	rig.seedTask(t, types.TaskStatusCompleted, "")

	rec := rig.get("/api/tasks?status=failed")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp listTasksResponse
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Tasks, 1)
	assert.Equal(t, types.TaskStatusFailed, resp.Tasks[0].Status)
	assert.Equal(t, 1, resp.Total)

	rec = rig.get("/api/tasks")
	decodeBody(t, rec, &resp)
	assert.Len(t, resp.Tasks, 3)
	assert.Equal(t, types.QueryLimitDefault, resp.Limit)

	rec = rig.get("/api/tasks?limit=1000")
	decodeBody(t, rec, &resp)
	assert.Equal(t, types.QueryLimitMax, resp.Limit, "limit must clamp to the maximum")

	rec = rig.get("/api/tasks?limit=2&offset=2")
	decodeBody(t, rec, &resp)
	assert.Len(t, resp.Tasks, 1)
	assert.Equal(t, 2, resp.Offset)

	rec = rig.get("/api/tasks?status=exploded")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpointExposesCollectors(t *testing.T) {
	rig := newAPIRig(t)

	rec := rig.get("/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "docmill_task_processing_seconds"),
		"prometheus exposition must include the pipeline collectors")
}
