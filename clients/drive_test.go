package clients

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewS3StorageParsesBucketURL(t *testing.T) {
	require := require.New(t)

	s, err := NewS3Storage("s3://AKIA123:sekrit@storage.example.com/clips?region=us-east-1", "ready/")
	require.NoError(err)
	require.Equal("clips", s.bucket)
	require.Equal("ready/", s.prefix)
	require.Equal("storage.example.com", s.host)
}

func TestNewS3StorageRejectsBadURLs(t *testing.T) {
	require := require.New(t)

	_, err := NewS3Storage("https://storage.example.com/clips", "ready/")
	require.ErrorContains(err, "scheme")

	_, err = NewS3Storage("s3://storage.example.com/clips", "ready/")
	require.ErrorContains(err, "credentials")

	_, err = NewS3Storage("s3://key:secret@storage.example.com/", "ready/")
	require.ErrorContains(err, "bucket")
}

func TestLocalStoragePublish(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	store := &LocalStorage{Dir: filepath.Join(dir, "outputs")}

	src := filepath.Join(dir, "clip_01.mp4")
	require.NoError(os.WriteFile(src, []byte("fake mp4 content"), 0644))

	locator, fileID, err := store.Publish(context.Background(), "job-1", src, "clip_01.mp4")
	require.NoError(err)
	require.Equal("/download/job-1_clip_01.mp4", locator)
	require.Equal("job-1_clip_01.mp4", fileID)

	// source is moved, not copied
	_, err = os.Stat(src)
	require.True(os.IsNotExist(err))

	published, err := os.ReadFile(filepath.Join(store.Dir, "job-1_clip_01.mp4"))
	require.NoError(err)
	require.Equal("fake mp4 content", string(published))

	names, err := store.List(context.Background(), 10)
	require.NoError(err)
	require.Equal([]string{"job-1_clip_01.mp4"}, names)
}

func TestLocalStorageListMissingDir(t *testing.T) {
	store := &LocalStorage{Dir: filepath.Join(t.TempDir(), "never-created")}
	names, err := store.List(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestLocalStorageCannotDownload(t *testing.T) {
	store := &LocalStorage{Dir: t.TempDir()}
	require.Error(t, store.Download(context.Background(), "job-1", "file-id", "/tmp/x"))
}
