package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/clipfab/shorts-api/config"
	"github.com/clipfab/shorts-api/pipeline"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"
)

type runnerFunc func(ctx context.Context, job *pipeline.JobInfo)

func (f runnerFunc) Run(ctx context.Context, job *pipeline.JobInfo) { f(ctx, job) }

var succeedRunner = runnerFunc(func(ctx context.Context, job *pipeline.JobInfo) {
	job.SetDone([]pipeline.ClipOutput{{FileName: "clip_01.mp4", RemoteLocator: "s3://clips/clip_01.mp4"}}, "ok")
})

var idleRunner = runnerFunc(func(ctx context.Context, job *pipeline.JobInfo) {
	<-ctx.Done()
})

func testCoordinator(runner pipeline.Runner, queueDepth int) *pipeline.Coordinator {
	return pipeline.NewCoordinator(runner, config.Cli{
		MaxConcurrentJobs: 1,
		MaxQueueDepth:     queueDepth,
		WhisperModel:      config.DefaultWhisperModel,
	})
}

func createJobBody() string {
	return `{"source_type": "url", "source_url": "https://cdn.example.com/talk.mp4"}`
}

func postJSON(handle httprouter.Handle, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handle(rr, req, nil)
	return rr
}

func TestCreateJobAccepted(t *testing.T) {
	require := require.New(t)
	handlers := ShortsAPIHandlersCollection{Coordinator: testCoordinator(succeedRunner, 8)}

	rr := postJSON(handlers.CreateJob(), "/jobs", createJobBody())
	require.Equal(http.StatusCreated, rr.Code)
	require.Equal("application/json", rr.Header().Get("Content-Type"))

	var snap pipeline.JobSnapshot
	require.NoError(json.Unmarshal(rr.Body.Bytes(), &snap))
	require.NotEmpty(snap.JobID)
	require.Equal(pipeline.StatusQueued, snap.Status)
	require.Equal(1, snap.Attempt)
}

func TestCreateJobRequiresJSONContentType(t *testing.T) {
	handlers := ShortsAPIHandlersCollection{Coordinator: testCoordinator(succeedRunner, 8)}
	req := httptest.NewRequest("POST", "/jobs", strings.NewReader(createJobBody()))
	req.Header.Set("Content-Type", "text/plain")
	rr := httptest.NewRecorder()
	handlers.CreateJob()(rr, req, nil)
	require.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
}

func TestCreateJobSchemaRejections(t *testing.T) {
	handlers := ShortsAPIHandlersCollection{Coordinator: testCoordinator(succeedRunner, 8)}

	for name, body := range map[string]string{
		"missing source_type": `{"source_url": "https://x/v.mp4"}`,
		"bad source_type":     `{"source_type": "tape"}`,
		"unknown top key":     `{"source_type": "url", "source_url": "https://x/v.mp4", "sourceurl": "typo"}`,
		"unknown option":      `{"source_type": "url", "source_url": "https://x/v.mp4", "options": {"target": 5}}`,
		"bad model":           `{"source_type": "url", "source_url": "https://x/v.mp4", "options": {"whisper_model": "large"}}`,
		"not json":            `this is not json`,
	} {
		rr := postJSON(handlers.CreateJob(), "/jobs", body)
		require.Equal(t, http.StatusBadRequest, rr.Code, "case %q", name)
	}
}

func TestCreateJobCrossFieldValidation(t *testing.T) {
	handlers := ShortsAPIHandlersCollection{Coordinator: testCoordinator(succeedRunner, 8)}

	// passes the schema but fails registry validation
	rr := postJSON(handlers.CreateJob(), "/jobs", `{"source_type": "drive"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "drive_file_id")
}

func TestCreateJobQueueFull(t *testing.T) {
	require := require.New(t)
	handlers := ShortsAPIHandlersCollection{Coordinator: testCoordinator(idleRunner, 1)}

	rr := postJSON(handlers.CreateJob(), "/jobs", createJobBody())
	require.Equal(http.StatusCreated, rr.Code)

	rr = postJSON(handlers.CreateJob(), "/jobs", createJobBody())
	require.Equal(http.StatusTooManyRequests, rr.Code)
}

func TestCreateJobIdempotency(t *testing.T) {
	require := require.New(t)
	handlers := ShortsAPIHandlersCollection{Coordinator: testCoordinator(succeedRunner, 8)}
	body := `{"source_type": "url", "source_url": "https://x/v.mp4", "idempotency_key": "batch-1"}`

	first := postJSON(handlers.CreateJob(), "/jobs", body)
	require.Equal(http.StatusCreated, first.Code)

	second := postJSON(handlers.CreateJob(), "/jobs", body)
	require.Equal(http.StatusCreated, second.Code, "replay returns the existing job")

	var a, b pipeline.JobSnapshot
	require.NoError(json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(json.Unmarshal(second.Body.Bytes(), &b))
	require.Equal(a.JobID, b.JobID)
}

func TestGetJob(t *testing.T) {
	require := require.New(t)
	coordinator := testCoordinator(succeedRunner, 8)
	handlers := ShortsAPIHandlersCollection{Coordinator: coordinator}

	created := postJSON(handlers.CreateJob(), "/jobs", createJobBody())
	var snap pipeline.JobSnapshot
	require.NoError(json.Unmarshal(created.Body.Bytes(), &snap))

	rr := httptest.NewRecorder()
	handlers.GetJob()(rr, httptest.NewRequest("GET", "/jobs/"+snap.JobID, nil),
		httprouter.Params{{Key: "id", Value: snap.JobID}})
	require.Equal(http.StatusOK, rr.Code)

	var fetched pipeline.JobSnapshot
	require.NoError(json.Unmarshal(rr.Body.Bytes(), &fetched))
	require.Equal(snap.JobID, fetched.JobID)

	rr = httptest.NewRecorder()
	handlers.GetJob()(rr, httptest.NewRequest("GET", "/jobs/nope", nil),
		httprouter.Params{{Key: "id", Value: "nope"}})
	require.Equal(http.StatusNotFound, rr.Code)
}

func TestRetryJob(t *testing.T) {
	require := require.New(t)
	coordinator := testCoordinator(succeedRunner, 8)
	handlers := ShortsAPIHandlersCollection{Coordinator: coordinator}

	created := postJSON(handlers.CreateJob(), "/jobs", createJobBody())
	var snap pipeline.JobSnapshot
	require.NoError(json.Unmarshal(created.Body.Bytes(), &snap))

	retry := func(id, body string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/jobs/"+id+"/retry", strings.NewReader(body))
		handlers.RetryJob()(rr, req, httprouter.Params{{Key: "id", Value: id}})
		return rr
	}

	require.Equal(http.StatusNotFound, retry("nope", "").Code)
	require.Equal(http.StatusConflict, retry(snap.JobID, "").Code, "queued jobs cannot be retried")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	coordinator.Start(ctx)
	require.Eventually(func() bool {
		s, err := coordinator.GetJob(snap.JobID)
		return err == nil && s.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	require.Equal(http.StatusBadRequest, retry(snap.JobID, `{"options": {"whisper": "typo"}}`).Code)

	rr := retry(snap.JobID, `{"options": {"force_rule_based": true}}`)
	require.Equal(http.StatusCreated, rr.Code)
	var retried pipeline.JobSnapshot
	require.NoError(json.Unmarshal(rr.Body.Bytes(), &retried))
	require.NotEqual(snap.JobID, retried.JobID, "retry responds with a new job id")
	require.Equal(2, retried.Attempt)
	require.Equal(pipeline.StatusQueued, retried.Status)

	// The original record keeps its terminal snapshot.
	old, err := coordinator.GetJob(snap.JobID)
	require.NoError(err)
	require.True(old.Status.Terminal())
}

func TestHealthzAndVersion(t *testing.T) {
	require := require.New(t)
	handlers := ShortsAPIHandlersCollection{}

	rr := httptest.NewRecorder()
	handlers.Healthz()(rr, httptest.NewRequest("GET", "/healthz", nil), nil)
	require.Equal(http.StatusOK, rr.Code)
	require.JSONEq(`{"ok": true}`, rr.Body.String())

	rr = httptest.NewRecorder()
	handlers.Version()(rr, httptest.NewRequest("GET", "/version", nil), nil)
	require.Equal(http.StatusOK, rr.Code)
	var v map[string]string
	require.NoError(json.Unmarshal(rr.Body.Bytes(), &v))
	require.Contains(v, "version")
	require.Contains(v, "commit")
}
