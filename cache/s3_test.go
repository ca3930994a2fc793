package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// apiError implements smithy.APIError.
type apiError struct {
	code string
	msg  string
}

func (e *apiError) Error() string                 { return e.msg }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.msg }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

var (
	errNoSuchKey = &apiError{code: "NoSuchKey", msg: "no such key"}
	errNotFound  = &apiError{code: "NotFound", msg: "not found"}
)

// mockS3 is an in-memory S3 backend.
type mockS3 struct {
	mu      sync.Mutex
	objects map[string][]byte

	getErr error
	putErr error
}

func newMockS3() *mockS3 {
	return &mockS3{objects: make(map[string][]byte)}
}

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*in.Key]
	if !ok {
		return nil, errNoSuchKey
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[*in.Key]; !ok {
		return nil, errNotFound
	}
	return &s3.HeadObjectOutput{}, nil
}

func (m *mockS3) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.objects {
		out = append(out, k)
	}
	return out
}

func writeFile(t *testing.T, fs FileStore, path string, data []byte) {
	t.Helper()
	w, err := fs.Write(context.Background(), path)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestS3Store_RoundTrip(t *testing.T) {
	m := newMockS3()
	s := NewS3(m, "bucket", "imagegate")
	ctx := context.Background()

	writeFile(t, s, "images/ab/abc", []byte("png"))
	assert.Equal(t, []string{"imagegate/images/ab/abc"}, m.keys())

	ok, err := s.Exists(ctx, "images/ab/abc")
	require.NoError(t, err)
	assert.True(t, ok)

	r, err := s.Read(ctx, "images/ab/abc")
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	r.Close()
	assert.Equal(t, []byte("png"), got)

	require.NoError(t, s.Delete(ctx, "images/ab/abc"))
	ok, err = s.Exists(ctx, "images/ab/abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestS3Store_MissingIsNotExist(t *testing.T) {
	s := NewS3(newMockS3(), "bucket", "")
	_, err := s.Read(context.Background(), "nope")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestS3Store_ReadError(t *testing.T) {
	m := newMockS3()
	m.getErr = &apiError{code: "AccessDenied", msg: "denied"}
	s := NewS3(m, "bucket", "")

	_, err := s.Read(context.Background(), "k")
	require.Error(t, err)
	assert.False(t, errors.Is(err, os.ErrNotExist))
}

func TestS3Store_UploadErrorSurfacesOnClose(t *testing.T) {
	m := newMockS3()
	m.putErr = errors.New("upload refused")
	s := NewS3(m, "bucket", "")

	w, err := s.Write(context.Background(), "k")
	require.NoError(t, err)
	// The pipe is closed with the upload error, so Write may fail too.
	w.Write([]byte("data"))
	assert.EqualError(t, w.Close(), "upload refused")
}

func TestImageCache_OverS3(t *testing.T) {
	c := New(NewS3(newMockS3(), "bucket", "cache"))
	ctx := context.Background()

	id, err := c.Put(ctx, []byte("jpeg bytes"), "image/jpeg")
	require.NoError(t, err)

	e, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", e.ContentType)
	assert.Equal(t, []byte("jpeg bytes"), e.Data)

	_, err = c.GetURL(ctx, "https://img.example/missing.png")
	assert.ErrorIs(t, err, ErrNotFound)
}
