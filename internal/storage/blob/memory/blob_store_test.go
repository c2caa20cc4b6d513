package memory

import (
	"bytes"
	"context"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("<html></html>")
	uri, err := store.PutObject(context.Background(), "pages/1.html", "text/html", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://pages/1.html" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'X'

	stored, contentType, ok := store.Object("pages/1.html")
	if !ok {
		t.Fatal("expected object to be stored")
	}
	if string(stored) != "<html></html>" {
		t.Fatalf("expected stored copy to be immutable, got %q", stored)
	}
	if contentType != "text/html" {
		t.Fatalf("unexpected content type %q", contentType)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one object, got %d", store.Len())
	}
}

func TestBlobStoreRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := NewBlobStore().PutObject(context.Background(), " ", "", bytes.NewReader(nil)); err == nil {
		t.Fatal("expected error for empty path")
	}
}
