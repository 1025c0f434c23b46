package storage

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Storage handles object storage for dispatch videos
type Storage struct {
	client    *minio.Client
	signer    *minio.Client // presigns against the public host
	bucket    string
	endpoint  string
	publicURL string
}

// Config holds MinIO configuration
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
	Region    string // skips the bucket location lookup when set
}

const defaultRegion = "us-east-1"

// Diagnostics describes the storage backend for the debug endpoint
type Diagnostics struct {
	Endpoint     string `json:"endpoint"`
	Bucket       string `json:"bucket"`
	BucketExists bool   `json:"bucket_exists"`
	PublicURL    string `json:"public_url,omitempty"`
	Error        string `json:"error,omitempty"`
}

// New creates a new Storage instance
func New(cfg Config) (*Storage, error) {
	s, err := build(cfg)
	if err != nil {
		return nil, err
	}

	if err := s.ensureBucket(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

// build wires the clients without touching the network.
func build(cfg Config) (*Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	s := &Storage{
		client:    client,
		signer:    client,
		bucket:    cfg.Bucket,
		endpoint:  cfg.Endpoint,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
	}

	if s.publicURL != "" {
		s.signer, err = publicSigner(cfg)
		if err != nil {
			return nil, err
		}
	}

	return s, nil
}

// publicSigner returns a client bound to the public host, since the signature covers the host header.
// The region is fixed so presigning never looks up the bucket location.
func publicSigner(cfg Config) (*minio.Client, error) {
	u, err := url.Parse(strings.TrimRight(cfg.PublicURL, "/"))
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid public storage URL %q", cfg.PublicURL)
	}
	if u.Path != "" {
		return nil, fmt.Errorf("public storage URL %q must not carry a path", cfg.PublicURL)
	}

	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}

	signer, err := minio.New(u.Host, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       u.Scheme == "https",
		Region:       region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create public minio client: %w", err)
	}
	return signer, nil
}

// ensureBucket creates the bucket if it doesn't exist. Objects stay private, reads go through presigned URLs.
func (s *Storage) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// UploadFile streams a local file to the given object key
func (s *Storage) UploadFile(ctx context.Context, objectKey, filePath, contentType string) error {
	_, err := s.client.FPutObject(ctx, s.bucket, objectKey, filePath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}
	return nil
}

// PresignedGetURL mints a time-limited download URL, signed for the public host when one is configured
func (s *Storage) PresignedGetURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	presignedURL, err := s.signer.PresignedGetObject(ctx, s.bucket, objectKey, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return presignedURL.String(), nil
}

// Diagnostics checks the bucket. Failures are reported in the result, not returned.
func (s *Storage) Diagnostics(ctx context.Context) Diagnostics {
	d := Diagnostics{Endpoint: s.endpoint, Bucket: s.bucket, PublicURL: s.publicURL}
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		d.Error = err.Error()
		return d
	}
	d.BucketExists = exists
	return d
}

// GenerateVideoPath creates a unique key for a dispatch video
func GenerateVideoPath(extension string) string {
	return path.Join("videos", uuid.New().String()+strings.ToLower(extension))
}
