// Package clients holds the adapters around every external service the
// pipeline talks to: remote storage, the URL downloader, the speech-to-text
// engine and the LLM chat API.
package clients

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/cenkalti/backoff/v4"
	xerrors "github.com/clipfab/shorts-api/errors"
	"github.com/clipfab/shorts-api/log"
	"github.com/clipfab/shorts-api/metrics"
)

const presignExpiry = 7 * 24 * time.Hour

// Storage is the remote-storage contract the pipeline needs: pull a source
// by file id, publish a finished clip, and list what is already published.
type Storage interface {
	Download(ctx context.Context, jobID, fileID, destPath string) error
	Publish(ctx context.Context, jobID, localPath, displayName string) (locator, fileID string, err error)
	List(ctx context.Context, limit int) ([]string, error)
}

// StorageRetryBackoff is the retry policy for storage and download
// transport errors: exponential from 2s with 25% jitter, capped at 30s,
// three retries.
func StorageRetryBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.RandomizationFactor = 0.25
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, 3)
}

// S3Storage talks to any S3-compatible store. The bucket URL carries the
// credentials and endpoint: s3://KEY:SECRET@endpoint/bucket?region=xyz
type S3Storage struct {
	bucket   string
	prefix   string
	host     string
	s3       *s3.S3
	uploader *s3manager.Uploader
	download *s3manager.Downloader
}

func NewS3Storage(bucketURL, prefix string) (*S3Storage, error) {
	u, err := url.Parse(bucketURL)
	if err != nil {
		return nil, fmt.Errorf("invalid storage URL: %w", err)
	}
	if u.Scheme != "s3" && u.Scheme != "s3+https" {
		return nil, fmt.Errorf("unsupported storage scheme %q", u.Scheme)
	}
	key := u.User.Username()
	secret, _ := u.User.Password()
	if key == "" || secret == "" {
		return nil, fmt.Errorf("storage URL is missing credentials")
	}
	bucket := strings.TrimPrefix(u.Path, "/")
	if bucket == "" {
		return nil, fmt.Errorf("storage URL is missing a bucket name")
	}
	region := u.Query().Get("region")
	if region == "" {
		region = "auto"
	}

	config := aws.NewConfig().
		WithRegion(region).
		WithCredentials(credentials.NewStaticCredentials(key, secret, "")).
		WithEndpoint("https://" + u.Host).
		WithS3ForcePathStyle(true)
	sess, err := session.NewSession(config)
	if err != nil {
		return nil, fmt.Errorf("error creating storage session: %w", err)
	}

	return &S3Storage{
		bucket:   bucket,
		prefix:   prefix,
		host:     u.Host,
		s3:       s3.New(sess),
		uploader: s3manager.NewUploader(sess),
		download: s3manager.NewDownloader(sess),
	}, nil
}

func (s *S3Storage) Download(ctx context.Context, jobID, fileID, destPath string) error {
	operation := func() error {
		start := time.Now()
		f, err := os.Create(destPath)
		if err != nil {
			return backoff.Permanent(err)
		}
		defer f.Close()
		_, err = s.download.DownloadWithContext(ctx, f, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(fileID),
		})
		s.observe("download", start, err)
		return classifyStorageErr(err)
	}
	if err := backoff.Retry(operation, backoff.WithContext(StorageRetryBackoff(), ctx)); err != nil {
		return fmt.Errorf("storage download of %s failed: %w", fileID, err)
	}
	log.Log(jobID, "downloaded source from storage", "file_id", fileID, "dest", destPath)
	return nil
}

func (s *S3Storage) Publish(ctx context.Context, jobID, localPath, displayName string) (string, string, error) {
	key := s.prefix + displayName
	operation := func() error {
		start := time.Now()
		f, err := os.Open(localPath)
		if err != nil {
			return backoff.Permanent(err)
		}
		defer f.Close()
		_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        f,
			ContentType: aws.String("video/mp4"),
		})
		s.observe("upload", start, err)
		return classifyStorageErr(err)
	}
	if err := backoff.Retry(operation, backoff.WithContext(StorageRetryBackoff(), ctx)); err != nil {
		return "", "", fmt.Errorf("storage upload of %s failed: %w", displayName, err)
	}

	locator, err := s.presign(key)
	if err != nil {
		// The object is uploaded; fall back to an opaque locator rather than
		// failing the clip.
		log.LogWarn(jobID, "presigning uploaded clip failed", "key", key, "err", err.Error())
		locator = fmt.Sprintf("s3://%s/%s", s.bucket, key)
	}
	log.Log(jobID, "published clip to storage", "key", key)
	return locator, key, nil
}

func (s *S3Storage) List(ctx context.Context, limit int) ([]string, error) {
	out, err := s.s3.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(s.prefix),
		MaxKeys: aws.Int64(int64(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("storage list failed: %w", err)
	}
	keys := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		keys = append(keys, aws.StringValue(obj.Key))
	}
	return keys, nil
}

func (s *S3Storage) presign(key string) (string, error) {
	req, _ := s.s3.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return req.Presign(presignExpiry)
}

func (s *S3Storage) observe(operation string, start time.Time, err error) {
	metrics.Metrics.DriveClient.RequestDuration.WithLabelValues(s.host, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Metrics.DriveClient.FailureCount.WithLabelValues(s.host, operation).Inc()
	}
}

// classifyStorageErr marks client-side storage failures as permanent so the
// backoff loop does not burn retries on them.
func classifyStorageErr(err error) error {
	if err == nil {
		return nil
	}
	if reqErr, ok := err.(awserr.RequestFailure); ok {
		if reqErr.StatusCode() >= 400 && reqErr.StatusCode() < 500 {
			return backoff.Permanent(xerrors.Unretriable(err))
		}
	}
	return err
}

// LocalStorage publishes clips into a directory served by the download
// endpoint. It stands in for remote storage when no bucket is configured.
type LocalStorage struct {
	Dir string
}

func (l *LocalStorage) Download(ctx context.Context, jobID, fileID, destPath string) error {
	return fmt.Errorf("local storage cannot download sources, configure a drive bucket")
}

func (l *LocalStorage) Publish(ctx context.Context, jobID, localPath, displayName string) (string, string, error) {
	if err := os.MkdirAll(l.Dir, 0755); err != nil {
		return "", "", err
	}
	name := jobID + "_" + displayName
	dest := filepath.Join(l.Dir, name)
	if err := os.Rename(localPath, dest); err != nil {
		// Scratch and outputs can live on different filesystems.
		if err := copyFile(localPath, dest); err != nil {
			return "", "", fmt.Errorf("publishing clip locally failed: %w", err)
		}
	}
	log.Log(jobID, "published clip locally", "path", dest)
	return "/download/" + name, name, nil
}

func (l *LocalStorage) List(ctx context.Context, limit int) ([]string, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if len(names) >= limit {
			break
		}
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return os.Remove(src)
}
