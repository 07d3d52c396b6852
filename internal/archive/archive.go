// Package archive uploads run artifacts to an S3-compatible bucket.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrNotConfigured is returned by New when credentials are missing
var ErrNotConfigured = errors.New("archive not configured")

const defaultPrefix = "repairs"

// Config holds the bucket connection settings. Secrets normally come from
// the R2_* environment variables.
type Config struct {
	Enabled         bool   `yaml:"enabled"`
	Endpoint        string `yaml:"endpoint" validate:"omitempty,url"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
}

// ApplyEnv fills unset fields from the environment
func (c *Config) ApplyEnv() {
	setFromEnv(&c.Endpoint, "R2_ENDPOINT")
	setFromEnv(&c.AccessKeyID, "R2_ACCESS_KEY_ID")
	setFromEnv(&c.SecretAccessKey, "R2_SECRET_ACCESS_KEY")
	setFromEnv(&c.Bucket, "R2_BUCKET")
}

func setFromEnv(dst *string, key string) {
	if *dst != "" {
		return
	}
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Configured reports whether every connection setting is present
func (c Config) Configured() bool {
	return c.Endpoint != "" && c.AccessKeyID != "" && c.SecretAccessKey != "" && c.Bucket != ""
}

// putter is the subset of the S3 client the uploader needs
type putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader writes artifacts under <prefix>/YYYY/MM/DD/<run-id>/<file>
type Uploader struct {
	client putter
	bucket string
	prefix string
	now    func() time.Time
}

// New returns an uploader for an R2-style endpoint with static credentials
func New(cfg Config) (*Uploader, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}

	endpoint := cfg.Endpoint
	client := s3.New(s3.Options{
		BaseEndpoint: &endpoint,
		Region:       "auto",
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		UsePathStyle: true,
	})
	return newUploader(client, cfg.Bucket, cfg.Prefix), nil
}

func newUploader(client putter, bucket, prefix string) *Uploader {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Uploader{
		client: client,
		bucket: bucket,
		prefix: prefix,
		now:    time.Now,
	}
}

// Key returns the object key for a file of the given run
func (u *Uploader) Key(runID, name string) string {
	day := u.now().UTC()
	return path.Join(u.prefix,
		fmt.Sprintf("%04d/%02d/%02d", day.Year(), day.Month(), day.Day()),
		runID, name)
}

// Upload puts body under the run's key and returns the key
func (u *Uploader) Upload(ctx context.Context, runID, name string, body []byte, metadata map[string]string) (string, error) {
	key := u.Key(runID, name)
	contentType := ContentType(name)

	meta := map[string]string{"run-id": runID}
	for k, v := range metadata {
		meta[k] = v
	}

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &u.bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: &contentType,
		Metadata:    meta,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}

// UploadFile uploads a local file under its base name
func (u *Uploader) UploadFile(ctx context.Context, runID, filename string, metadata map[string]string) (string, error) {
	body, err := os.ReadFile(filename)
	if err != nil {
		return "", fmt.Errorf("read artifact: %w", err)
	}
	return u.Upload(ctx, runID, filepath.Base(filename), body, metadata)
}

// ContentType maps artifact extensions to MIME types
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return "text/csv"
	case ".parquet":
		return "application/vnd.apache.parquet"
	case ".geojson":
		return "application/geo+json"
	case ".kml":
		return "application/vnd.google-earth.kml+xml"
	case ".gpx":
		return "application/gpx+xml"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
