package storage

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBucket = "healthchecks"

type s3Object struct {
	data        []byte
	contentType string
	modified    time.Time
}

// fakeS3 отвечает на PUT/GET/HEAD/DELETE объектов в path-style адресации
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]s3Object
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key, ok := strings.CutPrefix(r.URL.Path, "/"+testBucket+"/")
	if !ok {
		http.Error(w, "unexpected path "+r.URL.Path, http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		data, err := readS3Body(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.objects[key] = s3Object{data: data, contentType: r.Header.Get("Content-Type"), modified: time.Now().UTC()}
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)

	case http.MethodGet, http.MethodHead:
		obj, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			if r.Method == http.MethodGet {
				fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message><Key>%s</Key></Error>`, key)
			}
			return
		}
		w.Header().Set("Content-Type", obj.contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(obj.data)))
		w.Header().Set("Last-Modified", obj.modified.Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(obj.data)
		}

	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// readS3Body снимает aws-chunked кодирование, если SDK его использовал
func readS3Body(r *http.Request) ([]byte, error) {
	if !strings.Contains(r.Header.Get("Content-Encoding"), "aws-chunked") {
		return io.ReadAll(r.Body)
	}

	var out bytes.Buffer
	br := bufio.NewReader(r.Body)
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size, _, _ := strings.Cut(strings.TrimSpace(line), ";")
		n, err := strconv.ParseInt(size, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("bad chunk size %q: %w", size, err)
		}
		if n == 0 {
			return out.Bytes(), nil
		}
		if _, err := io.CopyN(&out, br, n); err != nil {
			return nil, err
		}
		if _, err := br.ReadString('\n'); err != nil {
			return nil, err
		}
	}
}

func setupS3(t *testing.T) (*S3Storage, *httptest.Server) {
	t.Helper()

	// без общих профилей AWS на машине, где идут тесты
	t.Setenv("AWS_CONFIG_FILE", "/nonexistent")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/nonexistent")

	srv := httptest.NewServer(&fakeS3{objects: make(map[string]s3Object)})
	t.Cleanup(srv.Close)

	s, err := NewS3Storage(context.Background(), S3Config{
		Region:         "us-east-1",
		Bucket:         testBucket,
		Endpoint:       srv.URL,
		AccessKey:      "test",
		SecretKey:      "test-secret",
		ForcePathStyle: true,
	})
	require.NoError(t, err)
	return s, srv
}

func TestS3Storage(t *testing.T) {
	s, _ := setupS3(t)
	ctx := context.Background()
	key := "runs/1/book.xlsx"
	content := []byte("workbook bytes")

	require.NoError(t, s.Save(ctx, key, bytes.NewReader(content)))

	rc, err := s.Get(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, content, data)

	info, err := s.Stat(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, key, info.Key)
	assert.Equal(t, int64(len(content)), info.Size)
	assert.Equal(t, workbookContentType, info.ContentType)
	assert.False(t, info.LastModified.IsZero())

	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Stat(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3StorageNotFound(t *testing.T) {
	s, _ := setupS3(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "runs/9/missing.xlsx")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Stat(ctx, "runs/9/missing.xlsx")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3StorageURL(t *testing.T) {
	s, srv := setupS3(t)

	link, err := s.URL(context.Background(), "runs/1/book.xlsx", 15*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	endpoint, err := url.Parse(srv.URL)
	require.NoError(t, err)

	assert.Equal(t, endpoint.Host, u.Host)
	assert.Equal(t, "/"+testBucket+"/runs/1/book.xlsx", u.Path)
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
}

func TestNewS3StorageValidation(t *testing.T) {
	_, err := NewS3Storage(context.Background(), S3Config{Bucket: testBucket})
	assert.Error(t, err)

	_, err = NewS3Storage(context.Background(), S3Config{Region: "us-east-1"})
	assert.Error(t, err)
}

func TestS3StorageThroughMiddleware(t *testing.T) {
	s, _ := setupS3(t)

	_, err := Wrap(s, logrus.New()).Get(context.Background(), "runs/9/missing.xlsx")
	assert.ErrorIs(t, err, ErrNotFound)
}
