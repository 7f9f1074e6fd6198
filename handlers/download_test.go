package handlers

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"
)

func TestDownloadServesPublishedClip(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	require.NoError(os.WriteFile(filepath.Join(dir, "job-1_clip_01.mp4"), []byte("mp4 bytes"), 0644))
	handlers := ShortsAPIHandlersCollection{OutputsDir: dir}

	rr := httptest.NewRecorder()
	handlers.Download()(rr, httptest.NewRequest("GET", "/download/job-1_clip_01.mp4", nil),
		httprouter.Params{{Key: "filename", Value: "job-1_clip_01.mp4"}})

	require.Equal(http.StatusOK, rr.Code)
	require.Equal("video/mp4", rr.Header().Get("Content-Type"))
	require.Equal("mp4 bytes", rr.Body.String())
}

func TestDownloadMissingFile(t *testing.T) {
	handlers := ShortsAPIHandlersCollection{OutputsDir: t.TempDir()}
	rr := httptest.NewRecorder()
	handlers.Download()(rr, httptest.NewRequest("GET", "/download/job-9_clip_01.mp4", nil),
		httprouter.Params{{Key: "filename", Value: "job-9_clip_01.mp4"}})
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDownloadRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.mp4"), []byte("x"), 0644))
	handlers := ShortsAPIHandlersCollection{OutputsDir: dir}

	for _, name := range []string{"../secret.mp4", "a/../secret.mp4", "..", ""} {
		rr := httptest.NewRecorder()
		handlers.Download()(rr, httptest.NewRequest("GET", "/download/x", nil),
			httprouter.Params{{Key: "filename", Value: name}})
		require.Equal(t, http.StatusBadRequest, rr.Code, "name %q", name)
	}
}

func TestDownloadOnlyServesMP4(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	handlers := ShortsAPIHandlersCollection{OutputsDir: dir}

	rr := httptest.NewRecorder()
	handlers.Download()(rr, httptest.NewRequest("GET", "/download/notes.txt", nil),
		httprouter.Params{{Key: "filename", Value: "notes.txt"}})
	require.Equal(t, http.StatusNotFound, rr.Code)
}
