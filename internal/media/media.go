// Package media prepares image and video attachments for a dispatch.
package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/viniciusxv27/enviomkt/internal/domain"
	"github.com/viniciusxv27/enviomkt/internal/storage"
	"github.com/viniciusxv27/enviomkt/pkg/log"
)

const (
	// MaxVideoSize is exclusive: a video of exactly this size is rejected.
	MaxVideoSize   int64 = 100 * 1024 * 1024
	VideoURLExpiry       = 7 * 24 * time.Hour
)

const (
	MsgVideoNotMP4        = "Apenas vídeos .mp4 são permitidos"
	MsgVideoTooLarge      = "Vídeo excede o limite de 100MB"
	MsgStorageUnavailable = "Armazenamento de vídeo indisponível"
)

// ErrNoStorage means no object store is configured.
var ErrNoStorage = errors.New(MsgStorageUnavailable)

// UploadError is a failure while storing or presigning a video.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	return e.Err.Error()
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// ObjectStore is the subset of object storage used for videos.
type ObjectStore interface {
	UploadFile(ctx context.Context, objectKey, filePath, contentType string) error
	PresignedGetURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}

// Attacher saves uploads to a scratch directory and turns them into payload fields.
type Attacher struct {
	uploadDir string
	store     ObjectStore
}

// NewAttacher creates the scratch directory. store may be nil when video storage is not configured.
func NewAttacher(uploadDir string, store ObjectStore) (*Attacher, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Attacher{uploadDir: uploadDir, store: store}, nil
}

// UploadDir is the scratch directory the cleanup routine sweeps.
func (a *Attacher) UploadDir() string {
	return a.uploadDir
}

// HasStore reports whether videos can be accepted.
func (a *Attacher) HasStore() bool {
	return a.store != nil
}

// SaveUpload copies a multipart file into the scratch directory under a unique name.
func (a *Attacher) SaveUpload(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	name := uuid.New().String() + "_" + filepath.Base(fh.Filename)
	dst := filepath.Join(a.uploadDir, name)
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create scratch file: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("save upload: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("save upload: %w", err)
	}
	return dst, nil
}

// EncodeImage saves the image, returns its bytes as standard base64 and removes the scratch copy.
func (a *Attacher) EncodeImage(fh *multipart.FileHeader) (string, error) {
	path, err := a.SaveUpload(fh)
	if err != nil {
		return "", err
	}
	defer removeScratch(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// ValidateVideoName accepts .mp4 in any letter case.
func ValidateVideoName(filename string) error {
	if !strings.EqualFold(filepath.Ext(filename), ".mp4") {
		return domain.NewValidationError(MsgVideoNotMP4)
	}
	return nil
}

// CheckVideoSize rejects videos of MaxVideoSize bytes or more.
func CheckVideoSize(size int64) error {
	if size >= MaxVideoSize {
		return domain.NewValidationError(MsgVideoTooLarge)
	}
	return nil
}

// AttachVideo stores the video and returns a presigned URL valid for VideoURLExpiry.
// The scratch copy is always removed.
func (a *Attacher) AttachVideo(ctx context.Context, fh *multipart.FileHeader) (string, error) {
	if err := ValidateVideoName(fh.Filename); err != nil {
		return "", err
	}
	if a.store == nil {
		return "", ErrNoStorage
	}

	path, err := a.SaveUpload(fh)
	if err != nil {
		return "", err
	}
	defer removeScratch(path)

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat video: %w", err)
	}
	if err := CheckVideoSize(info.Size()); err != nil {
		return "", err
	}

	key := storage.GenerateVideoPath(filepath.Ext(fh.Filename))
	if err := a.store.UploadFile(ctx, key, path, "video/mp4"); err != nil {
		return "", &UploadError{Err: err}
	}
	url, err := a.store.PresignedGetURL(ctx, key, VideoURLExpiry)
	if err != nil {
		return "", &UploadError{Err: err}
	}
	log.Component("media").WithField("object", key).Infof("video uploaded (%d bytes)", info.Size())
	return url, nil
}

func removeScratch(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Component("media").Warnf("failed to remove scratch file %s: %v", path, err)
	}
}
