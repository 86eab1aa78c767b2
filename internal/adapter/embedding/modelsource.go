package embedding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"inu/internal/domain"
)

const defaultFetchTimeout = 60 * time.Second

// ModelSource provides the raw bytes of an ONNX model.
type ModelSource interface {
	Load(ctx context.Context) ([]byte, error)
	String() string
}

// SourceOptions configures remote model sources.
type SourceOptions struct {
	Timeout    time.Duration
	S3Region   string
	S3Endpoint string
}

// NewModelSource picks a source for location: s3://bucket/key, http(s)://
// URLs, or a local file path.
func NewModelSource(location string, opts SourceOptions) (ModelSource, error) {
	if location == "" {
		return nil, fmt.Errorf("model location is empty")
	}

	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// len 1 scheme is a Windows drive letter
		return &FileSource{Path: location}, nil
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return NewHTTPSource(location, opts.Timeout), nil
	case "s3":
		return NewS3SourceFromURL(u, opts)
	case "file":
		return &FileSource{Path: u.Path}, nil
	default:
		return nil, fmt.Errorf("unsupported model location scheme %q", u.Scheme)
	}
}

// FileSource reads a model from the local filesystem.
type FileSource struct {
	Path string
}

func (s *FileSource) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", s.Path, err)
	}
	return data, nil
}

func (s *FileSource) String() string {
	return s.Path
}

// HTTPSource downloads a model with a bounded timeout. Timeouts and server
// errors are reported as *domain.RetryableError.
type HTTPSource struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

func NewHTTPSource(rawURL string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &HTTPSource{
		url:     rawURL,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) Load(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &domain.RetryableError{Op: "fetch model " + s.url, Err: err}
		}
		return nil, fmt.Errorf("fetch model %s: %w", s.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("fetch model %s: status %d", s.url, resp.StatusCode)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, &domain.RetryableError{Op: "fetch model", Err: err}
		}
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, &domain.RetryableError{Op: "read model body", Err: err}
		}
		return nil, fmt.Errorf("read model body: %w", err)
	}
	return data, nil
}

func (s *HTTPSource) String() string {
	return s.url
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
