package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/facility-core/internal/infrastructure/config"
)

// fakeS3 records object PUT and DELETE requests.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    bool
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		// 403 is not retried by the client.
		w.WriteHeader(http.StatusForbidden)
		return
	}
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body) //nolint:errcheck // Test server
		f.objects[r.URL.Path] = body
		w.Header().Set("ETag", `"0123456789abcdef"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(f.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func newTestStore(t *testing.T) (*Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store, err := New(config.MediaConfig{
		Enabled:   true,
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		Region:    "us-east-1",
		Bucket:    "media",
		AccessKey: "test",
		SecretKey: "test-secret",
		CDNURL:    "https://cdn.example.com/",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return store, fake
}

func TestUploadAndDeleteImage(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()

	payload := []byte("png-bytes")
	url, err := store.UploadImage(ctx, "org-1", "logos", Upload{
		Filename:    "Logo.PNG",
		ContentType: "image/png",
		Size:        int64(len(payload)),
		Body:        bytes.NewReader(payload),
	})
	if err != nil {
		t.Fatalf("UploadImage() error = %v", err)
	}
	if !strings.HasPrefix(url, "https://cdn.example.com/org-1/logos/") || !strings.HasSuffix(url, ".png") {
		t.Fatalf("url = %q, want cdn/org-1/logos/<uuid>.png", url)
	}

	key := strings.TrimPrefix(url, "https://cdn.example.com/")
	fake.mu.Lock()
	_, stored := fake.objects["/media/"+key]
	fake.mu.Unlock()
	if !stored {
		t.Fatalf("object /media/%s not stored", key)
	}

	if err := store.DeleteImage(ctx, url); err != nil {
		t.Fatalf("DeleteImage() error = %v", err)
	}
	fake.mu.Lock()
	_, stillThere := fake.objects["/media/"+key]
	fake.mu.Unlock()
	if stillThere {
		t.Error("object still present after DeleteImage")
	}
}

func TestUploadImage_BackendFailure(t *testing.T) {
	store, fake := newTestStore(t)
	fake.mu.Lock()
	fake.fail = true
	fake.mu.Unlock()

	_, err := store.UploadImage(context.Background(), "o", "covers", Upload{
		Filename: "a.jpg", Size: 1, Body: strings.NewReader("x"),
	})
	if !errors.Is(err, ErrUploadFailed) {
		t.Errorf("UploadImage() error = %v, want ErrUploadFailed", err)
	}
}

func TestDeleteImage_ForeignURL(t *testing.T) {
	store, _ := newTestStore(t)
	err := store.DeleteImage(context.Background(), "https://elsewhere.example.com/x.png")
	if !errors.Is(err, ErrForeignURL) {
		t.Errorf("DeleteImage() error = %v, want ErrForeignURL", err)
	}
}

func TestDisabledStore(t *testing.T) {
	store, err := New(config.MediaConfig{Enabled: false})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if store.Enabled() {
		t.Fatal("disabled store reports Enabled")
	}

	_, err = store.UploadImage(context.Background(), "o", "logos", Upload{Filename: "a.png"})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("UploadImage() error = %v, want ErrDisabled", err)
	}
	if err := store.DeleteImage(context.Background(), "https://cdn/x.png"); err != nil {
		t.Errorf("DeleteImage() on disabled store error = %v", err)
	}
}

func TestObjectKey(t *testing.T) {
	key := objectKey("owner", "diagrams", "Plan.SVG")
	if !strings.HasPrefix(key, "owner/diagrams/") || !strings.HasSuffix(key, ".svg") {
		t.Errorf("objectKey() = %q", key)
	}
	if objectKey("owner", "diagrams", "Plan.SVG") == key {
		t.Error("objectKey() must generate a fresh name each call")
	}
}
