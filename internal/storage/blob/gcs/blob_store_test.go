package gcs

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	bytes.Buffer
	contentType string
	closed      bool
	closeErr    error
}

func (w *fakeWriter) SetContentType(ct string) { w.contentType = ct }

func (w *fakeWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func newTestStore(w *fakeWriter) (*BlobStore, *[]string) {
	var objects []string
	return &BlobStore{
		bucket: "comics",
		newWriter: func(_ context.Context, bucket, object string) objectWriter {
			objects = append(objects, bucket+"/"+object)
			return w
		},
	}, &objects
}

func TestNewValidatesInput(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)
}

func TestPutObjectUploads(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	store, objects := newTestStore(w)

	uri, err := store.PutObject(context.Background(), "pages/7.html", "text/html", strings.NewReader("<html/>"))
	require.NoError(t, err)
	assert.Equal(t, "gs://comics/pages/7.html", uri)
	assert.Equal(t, []string{"comics/pages/7.html"}, *objects)
	assert.Equal(t, "<html/>", w.String())
	assert.Equal(t, "text/html", w.contentType)
	assert.True(t, w.closed)
}

func TestPutObjectCloseError(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{closeErr: errors.New("quota")}
	store, _ := newTestStore(w)

	_, err := store.PutObject(context.Background(), "pages/7.html", "", strings.NewReader("x"))
	require.ErrorContains(t, err, "close writer")
}

func TestPutObjectEmptyPath(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(&fakeWriter{})
	_, err := store.PutObject(context.Background(), "", "", strings.NewReader("x"))
	require.Error(t, err)
}
