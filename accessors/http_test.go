package accessors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func TestHTTPAccessorReadsRange(t *testing.T) {
	payload := []byte("0123456789abcdef")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeHeader := r.Header.Get("Range")
		if rangeHeader != "bytes=4-7" {
			t.Errorf("unexpected Range header: %q", rangeHeader)
		}
		w.WriteHeader(http.StatusPartialContent)
		w.Write(payload[4:8])
	}))
	defer srv.Close()

	a := NewHTTPAccessor(srv.URL, DefaultHTTPConfig())
	got, err := a.Read(context.Background(), 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "4567" {
		t.Fatalf("Read() = %q, want %q", got, "4567")
	}
}

func TestHTTPAccessorStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	a := NewHTTPAccessor(srv.URL, DefaultHTTPConfig())
	_, err := a.Read(context.Background(), 0, 4)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
}

func TestFileAccessorReadsRange(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/data.bin"
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}
	a, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	got, err := a.Read(context.Background(), 6, 5)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "world" {
		t.Fatalf("Read() = %q, want %q", got, "world")
	}
}
