package artifact

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/verifiedlabs/fstarup/internal/stackerr"
)

func TestFetchCachesAndReuses(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("archive"))
	}))
	defer srv.Close()

	d := NewDownloader(t.TempDir())
	desc := Descriptor{Kind: KindPrebuilt, URL: srv.URL + "/fstar.tar.gz"}

	first, err := d.Fetch(context.Background(), "2025.10.06-stack.1", desc)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	data, err := os.ReadFile(first)
	if err != nil {
		t.Fatalf("read cached file: %v", err)
	}
	if string(data) != "archive" {
		t.Errorf("cached content = %q", data)
	}

	second, err := d.Fetch(context.Background(), "2025.10.06-stack.1", desc)
	if err != nil {
		t.Fatalf("second Fetch failed: %v", err)
	}
	if second != first {
		t.Errorf("cache path changed: %q vs %q", second, first)
	}
	if hits != 1 {
		t.Errorf("server hit %d times, want 1 (cache reuse)", hits)
	}
}

func TestFetchSingleAttempt(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDownloader(t.TempDir())
	_, err := d.Fetch(context.Background(), "v", Descriptor{Kind: KindSolver, URL: srv.URL + "/z3.zip"})
	if err == nil {
		t.Fatal("expected download failure")
	}
	if !stackerr.IsKind(err, stackerr.KindNetwork) {
		t.Errorf("expected network error, got %v", err)
	}
	if hits != 1 {
		t.Errorf("server hit %d times, want exactly 1 (no retry)", hits)
	}
}

func TestFetchEmptyURL(t *testing.T) {
	d := NewDownloader(t.TempDir())
	_, err := d.Fetch(context.Background(), "v", Descriptor{})
	if !stackerr.IsKind(err, stackerr.KindConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}
