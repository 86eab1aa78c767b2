package embedding

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"inu/internal/domain"
)

func TestNewModelSource(t *testing.T) {
	cases := []struct {
		location string
		want     string
		wantErr  bool
	}{
		{"data/models/m.onnx", "*embedding.FileSource", false},
		{"/abs/m.onnx", "*embedding.FileSource", false},
		{"file:///abs/m.onnx", "*embedding.FileSource", false},
		{"https://example.com/m.onnx", "*embedding.HTTPSource", false},
		{"s3://bucket/models/m.onnx", "*embedding.S3Source", false},
		{"s3://bucket", "", true},
		{"ftp://example.com/m.onnx", "", true},
		{"", "", true},
	}

	for _, tc := range cases {
		t.Run(tc.location, func(t *testing.T) {
			src, err := NewModelSource(tc.location, SourceOptions{})
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil {
				return
			}
			if got := fmt.Sprintf("%T", src); got != tc.want {
				t.Errorf("source type = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.onnx")
	if err := os.WriteFile(path, []byte("weights"), 0644); err != nil {
		t.Fatal(err)
	}

	data, err := (&FileSource{Path: path}).Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "weights" {
		t.Errorf("data = %q", data)
	}

	if _, err := (&FileSource{Path: path + ".missing"}).Load(context.Background()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte("weights"))
		case "/missing":
			http.NotFound(w, r)
		case "/broken":
			w.WriteHeader(http.StatusBadGateway)
		case "/slow":
			time.Sleep(200 * time.Millisecond)
			w.Write([]byte("late"))
		}
	}))
	defer srv.Close()

	ctx := context.Background()

	data, err := NewHTTPSource(srv.URL+"/ok", time.Second).Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "weights" {
		t.Errorf("data = %q", data)
	}

	_, err = NewHTTPSource(srv.URL+"/missing", time.Second).Load(ctx)
	if err == nil || domain.IsRetryable(err) {
		t.Errorf("404 should fail without retry, got %v", err)
	}

	_, err = NewHTTPSource(srv.URL+"/broken", time.Second).Load(ctx)
	if !domain.IsRetryable(err) {
		t.Errorf("502 should be retryable, got %v", err)
	}

	_, err = NewHTTPSource(srv.URL+"/slow", 20*time.Millisecond).Load(ctx)
	if !domain.IsRetryable(err) {
		t.Errorf("timeout should be retryable, got %v", err)
	}
}

type apiError struct {
	code string
}

func (e *apiError) Error() string                 { return e.code }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.code }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

type mockS3 struct {
	objects map[string][]byte
}

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := m.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &apiError{code: "NoSuchKey"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3Source(t *testing.T) {
	client := &mockS3{objects: map[string][]byte{"models/mobilenet.onnx": []byte("weights")}}

	src := NewS3Source(client, "models", "mobilenet.onnx")
	data, err := src.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "weights" {
		t.Errorf("data = %q", data)
	}
	if src.String() != "s3://models/mobilenet.onnx" {
		t.Errorf("String() = %s", src.String())
	}

	_, err = NewS3Source(client, "models", "missing.onnx").Load(context.Background())
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}
