package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/clipfab/shorts-api/config"
	"github.com/clipfab/shorts-api/pipeline"
	"github.com/stretchr/testify/require"
)

type doneRunner struct{}

func (doneRunner) Run(ctx context.Context, job *pipeline.JobInfo) {
	job.SetDone(nil, "ok")
}

func testRouterServer(t *testing.T) *httptest.Server {
	t.Helper()
	coordinator := pipeline.NewCoordinator(doneRunner{}, config.Cli{
		MaxConcurrentJobs: 1,
		MaxQueueDepth:     8,
		WhisperModel:      config.DefaultWhisperModel,
	})
	server := httptest.NewServer(NewShortsAPIRouter(coordinator, "test-token", t.TempDir()))
	t.Cleanup(server.Close)
	return server
}

func TestRouterServiceEndpointsAreOpen(t *testing.T) {
	require := require.New(t)
	server := testRouterServer(t)

	for _, path := range []string{"/ok", "/healthz", "/version", "/metrics"} {
		res, err := http.Get(server.URL + path)
		require.NoError(err)
		res.Body.Close()
		require.Equal(http.StatusOK, res.StatusCode, "path %s", path)
	}
}

func TestRouterJobEndpointsRequireAuth(t *testing.T) {
	require := require.New(t)
	server := testRouterServer(t)

	res, err := http.Post(server.URL+"/jobs", "application/json",
		strings.NewReader(`{"source_type": "url", "source_url": "https://x/v.mp4"}`))
	require.NoError(err)
	res.Body.Close()
	require.Equal(http.StatusUnauthorized, res.StatusCode)

	res, err = http.Get(server.URL + "/jobs/some-id")
	require.NoError(err)
	res.Body.Close()
	require.Equal(http.StatusUnauthorized, res.StatusCode)

	res, err = http.Get(server.URL + "/download/clip.mp4")
	require.NoError(err)
	res.Body.Close()
	require.Equal(http.StatusUnauthorized, res.StatusCode)
}

func TestRouterCreateAndPollJob(t *testing.T) {
	require := require.New(t)
	server := testRouterServer(t)

	req, _ := http.NewRequest("POST", server.URL+"/jobs",
		strings.NewReader(`{"source_type": "url", "source_url": "https://x/v.mp4"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", "test-token")

	res, err := http.DefaultClient.Do(req)
	require.NoError(err)
	defer res.Body.Close()
	require.Equal(http.StatusCreated, res.StatusCode)
	require.Equal("application/json", res.Header.Get("Content-Type"))
}

func TestRouterMetricsExposition(t *testing.T) {
	require := require.New(t)
	server := testRouterServer(t)

	res, err := http.Get(server.URL + "/metrics")
	require.NoError(err)
	defer res.Body.Close()
	require.Equal(http.StatusOK, res.StatusCode)
}
