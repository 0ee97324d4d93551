package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockStorage is a mock implementation of the Storage interface
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Save(ctx context.Context, key string, reader io.Reader) error {
	args := m.Called(ctx, key, reader)
	return args.Error(0)
}

func (m *MockStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, key)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func (m *MockStorage) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockStorage) Stat(ctx context.Context, key string) (*FileInfo, error) {
	args := m.Called(ctx, key)
	info, _ := args.Get(0).(*FileInfo)
	return info, args.Error(1)
}

func (m *MockStorage) URL(ctx context.Context, key string, expiration time.Duration) (string, error) {
	args := m.Called(ctx, key, expiration)
	return args.String(0), args.Error(1)
}

func TestLocalStorage(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s, err := NewLocalStorage(base)
	require.NoError(t, err)

	key := "runs/7/book.xlsx"
	require.NoError(t, s.Save(ctx, key, strings.NewReader("workbook")))

	_, err = os.Stat(filepath.Join(base, "runs", "7", "book.xlsx"))
	require.NoError(t, err)

	rc, err := s.Get(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "workbook", string(data))

	info, err := s.Stat(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(8), info.Size)
	assert.Equal(t, key, info.Key)

	url, err := s.URL(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "file://"))
	assert.True(t, strings.HasSuffix(url, "runs/7/book.xlsx"))

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key))

	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Stat(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorageOverwrite(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, "a.xlsx", strings.NewReader("first version")))
	require.NoError(t, s.Save(ctx, "a.xlsx", strings.NewReader("second")))

	info, err := s.Stat(ctx, "a.xlsx")
	require.NoError(t, err)
	assert.Equal(t, int64(6), info.Size)
}

func TestNewLocalStorageEmptyPath(t *testing.T) {
	_, err := NewLocalStorage("")
	assert.Error(t, err)
}

func TestValidateKey(t *testing.T) {
	valid := []string{"runs/1/a.xlsx", "a.xlsx", "runs/..hidden/a"}
	for _, key := range valid {
		assert.NoError(t, ValidateKey(key), key)
	}

	invalid := []string{"", "/etc/passwd", "runs/../../etc", "..", `runs\1`, strings.Repeat("k", 1025)}
	for _, key := range invalid {
		assert.ErrorIs(t, ValidateKey(key), ErrInvalidKey, key)
	}
}

func TestValidationMiddleware(t *testing.T) {
	backend := new(MockStorage)
	s := NewValidationMiddleware(backend)

	err := s.Save(context.Background(), "../escape", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = s.Get(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidKey)

	backend.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
	backend.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestRetryMiddleware(t *testing.T) {
	backend := new(MockStorage)
	s := NewRetryMiddleware(backend, 3, time.Millisecond, logrus.New())

	transient := errors.New("connection reset")
	backend.On("Delete", mock.Anything, "k").Return(transient).Twice()
	backend.On("Delete", mock.Anything, "k").Return(nil).Once()

	require.NoError(t, s.Delete(context.Background(), "k"))
	backend.AssertNumberOfCalls(t, "Delete", 3)
}

func TestRetryMiddlewareGivesUp(t *testing.T) {
	backend := new(MockStorage)
	s := NewRetryMiddleware(backend, 2, time.Millisecond, logrus.New())

	backend.On("Delete", mock.Anything, "k").Return(errors.New("boom"))

	assert.EqualError(t, s.Delete(context.Background(), "k"), "boom")
	backend.AssertNumberOfCalls(t, "Delete", 3)
}

func TestRetryMiddlewareNotFound(t *testing.T) {
	backend := new(MockStorage)
	s := NewRetryMiddleware(backend, 3, time.Millisecond, logrus.New())

	backend.On("Get", mock.Anything, "k").Return(nil, ErrNotFound)

	_, err := s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrNotFound)
	backend.AssertNumberOfCalls(t, "Get", 1)
}

func TestRetryMiddlewareRewindsReader(t *testing.T) {
	backend := new(MockStorage)
	s := NewRetryMiddleware(backend, 1, time.Millisecond, logrus.New())

	var got []string
	backend.On("Save", mock.Anything, "k", mock.Anything).
		Run(func(args mock.Arguments) {
			data, _ := io.ReadAll(args.Get(2).(io.Reader))
			got = append(got, string(data))
		}).
		Return(errors.New("timeout")).Once()
	backend.On("Save", mock.Anything, "k", mock.Anything).
		Run(func(args mock.Arguments) {
			data, _ := io.ReadAll(args.Get(2).(io.Reader))
			got = append(got, string(data))
		}).
		Return(nil).Once()

	require.NoError(t, s.Save(context.Background(), "k", bytes.NewReader([]byte("xlsx"))))
	assert.Equal(t, []string{"xlsx", "xlsx"}, got)
}

func TestWrapLocal(t *testing.T) {
	ctx := context.Background()
	local, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	s := Wrap(local, logrus.New())
	require.NoError(t, s.Save(ctx, JoinKey("runs", "1", "a.xlsx"), strings.NewReader("x")))

	info, err := s.Stat(ctx, "runs/1/a.xlsx")
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.Size)

	_, err = s.Get(ctx, "runs/1/missing.xlsx")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.Delete(ctx, "/abs"), ErrInvalidKey)
}
