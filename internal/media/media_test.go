package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/viniciusxv27/enviomkt/internal/domain"
)

type fakeStore struct {
	key         string
	contentType string
	uploaded    []byte
	expiry      time.Duration
	uploadErr   error
}

func (f *fakeStore) UploadFile(ctx context.Context, objectKey, filePath, contentType string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	f.key, f.contentType, f.uploaded = objectKey, contentType, data
	return nil
}

func (f *fakeStore) PresignedGetURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	f.expiry = expiry
	return "https://files.example.com/" + objectKey + "?sig=1", nil
}

// fileHeader builds a real multipart.FileHeader for name with content.
func fileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(content)
	w.Close()

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(1 << 20)
	if err != nil {
		t.Fatalf("ReadForm: %v", err)
	}
	t.Cleanup(func() { form.RemoveAll() })
	return form.File["file"][0]
}

func scratchFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	return len(entries)
}

func TestNewAttacherCreatesUploadDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "scratch", "uploads")
	a, err := NewAttacher(dir, nil)
	if err != nil {
		t.Fatalf("NewAttacher: %v", err)
	}
	if a.UploadDir() != dir {
		t.Errorf("UploadDir = %q, want %q", a.UploadDir(), dir)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("upload dir not created: %v", err)
	}
	if a.HasStore() {
		t.Error("attacher without a store reports one")
	}
}

func TestCheckVideoSizeBoundary(t *testing.T) {
	if err := CheckVideoSize(MaxVideoSize - 1); err != nil {
		t.Errorf("one byte under the limit rejected: %v", err)
	}
	for _, size := range []int64{MaxVideoSize, MaxVideoSize + 1} {
		var verr *domain.ValidationError
		if err := CheckVideoSize(size); !errors.As(err, &verr) || verr.Message != MsgVideoTooLarge {
			t.Errorf("size %d: error = %v, want %q", size, err, MsgVideoTooLarge)
		}
	}
}

func TestValidateVideoName(t *testing.T) {
	for name, ok := range map[string]bool{"a.mp4": true, "A.MP4": true, "a.mov": false, "mp4": false} {
		if err := ValidateVideoName(name); (err == nil) != ok {
			t.Errorf("ValidateVideoName(%q) = %v", name, err)
		}
	}
}

func TestEncodeImage(t *testing.T) {
	dir := t.TempDir()
	a, err := NewAttacher(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	content := []byte{0x89, 'P', 'N', 'G', 0, 1, 2, 3}

	got, err := a.EncodeImage(fileHeader(t, "foto.png", content))
	if err != nil {
		t.Fatalf("EncodeImage: %v", err)
	}
	if got != base64.StdEncoding.EncodeToString(content) {
		t.Errorf("EncodeImage = %q", got)
	}
	if n := scratchFiles(t, dir); n != 0 {
		t.Errorf("%d scratch files left behind", n)
	}
}

func TestAttachVideo(t *testing.T) {
	dir := t.TempDir()
	store := &fakeStore{}
	a, _ := NewAttacher(dir, store)

	url, err := a.AttachVideo(context.Background(), fileHeader(t, "Promo.MP4", []byte("video-bytes")))
	if err != nil {
		t.Fatalf("AttachVideo: %v", err)
	}
	if !strings.HasPrefix(store.key, "videos/") || !strings.HasSuffix(store.key, ".mp4") {
		t.Errorf("object key = %q", store.key)
	}
	if string(store.uploaded) != "video-bytes" || store.contentType != "video/mp4" {
		t.Errorf("uploaded %q as %q", store.uploaded, store.contentType)
	}
	if store.expiry != 7*24*time.Hour {
		t.Errorf("expiry = %v, want 7 days", store.expiry)
	}
	if !strings.Contains(url, store.key) {
		t.Errorf("url %q does not reference %q", url, store.key)
	}
	if n := scratchFiles(t, dir); n != 0 {
		t.Errorf("%d scratch files left behind", n)
	}
}

func TestAttachVideoErrors(t *testing.T) {
	t.Run("wrong extension", func(t *testing.T) {
		a, _ := NewAttacher(t.TempDir(), &fakeStore{})
		var verr *domain.ValidationError
		_, err := a.AttachVideo(context.Background(), fileHeader(t, "clip.avi", []byte("x")))
		if !errors.As(err, &verr) || verr.Message != MsgVideoNotMP4 {
			t.Fatalf("error = %v", err)
		}
	})

	t.Run("no storage", func(t *testing.T) {
		a, _ := NewAttacher(t.TempDir(), nil)
		_, err := a.AttachVideo(context.Background(), fileHeader(t, "clip.mp4", []byte("x")))
		if !errors.Is(err, ErrNoStorage) {
			t.Fatalf("error = %v, want ErrNoStorage", err)
		}
	})

	t.Run("upload failure", func(t *testing.T) {
		dir := t.TempDir()
		a, _ := NewAttacher(dir, &fakeStore{uploadErr: errors.New("bucket gone")})
		_, err := a.AttachVideo(context.Background(), fileHeader(t, "clip.mp4", []byte("x")))
		var upErr *UploadError
		if !errors.As(err, &upErr) || upErr.Error() != "bucket gone" {
			t.Fatalf("error = %v, want UploadError", err)
		}
		if n := scratchFiles(t, dir); n != 0 {
			t.Errorf("%d scratch files left behind", n)
		}
	})
}
