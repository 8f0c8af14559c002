package versification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/ulikunitz/xz"

	rerrors "github.com/FocuswithJustin/JuniperReader/core/errors"
	"github.com/FocuswithJustin/JuniperReader/core/scripture"
)

// maxDatasetBytes bounds a downloaded dataset.
const maxDatasetBytes = 32 << 20

// Source loads the versification dataset.
type Source interface {
	Load(ctx context.Context) (Dataset, error)
	Name() string
}

// FileSource reads the dataset from a local .json or .json.xz file.
type FileSource struct {
	Path string
}

func (s FileSource) Name() string { return "file:" + s.Path }

func (s FileSource) Load(ctx context.Context) (Dataset, error) {
	data, err := scripture.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, rerrors.NewNotFound("versification dataset", s.Path)
	}
	if err != nil {
		return nil, err
	}
	return Decode(data, s.Path)
}

// HTTPError reports a non-success response from an HTTPSource.
type HTTPError struct {
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error: %s", e.Status)
}

// HTTPSource downloads the dataset. A URL path ending in ".xz" is
// decompressed.
type HTTPSource struct {
	URL       string
	Client    *http.Client
	UserAgent string
}

// NewHTTPSource creates a source with a bounded client timeout.
func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{
		URL:       url,
		Client:    &http.Client{Timeout: 30 * time.Second},
		UserAgent: "juniper-reader/1.0",
	}
}

func (s *HTTPSource) Name() string { return s.URL }

func (s *HTTPSource) Load(ctx context.Context) (Dataset, error) {
	if !strings.HasPrefix(s.URL, "http://") && !strings.HasPrefix(s.URL, "https://") {
		return nil, rerrors.NewValidation("url", s.URL, "unsupported URL scheme")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, rerrors.NewNotFound("versification dataset", s.URL)
	}
	if resp.StatusCode >= 400 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDatasetBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if strings.HasSuffix(req.URL.Path, ".xz") {
		r, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, rerrors.NewParse("xz", s.URL, "invalid xz stream", err)
		}
		if data, err = io.ReadAll(r); err != nil {
			return nil, rerrors.NewParse("xz", s.URL, "truncated xz stream", err)
		}
	}
	return Decode(data, s.URL)
}

// StaticSource serves a dataset already in memory.
type StaticSource struct {
	Data Dataset
}

func (s StaticSource) Name() string { return "static" }

func (s StaticSource) Load(context.Context) (Dataset, error) {
	if s.Data == nil {
		return Dataset{}, nil
	}
	return s.Data, nil
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Dataset, error)

func (f SourceFunc) Name() string { return "func" }

func (f SourceFunc) Load(ctx context.Context) (Dataset, error) { return f(ctx) }
