package transcribe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestShortClipIsSuppressedWithoutRemoteCall(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "should not happen"})
	}))
	defer srv.Close()

	c := New(srv.URL, "key", "whisper-1")

	// 1 second at 16 kHz, under the 1.5s threshold.
	res, err := c.Transcribe(context.Background(), make([]float32, 16000), 16000)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if !res.Suppressed || res.Text != "" {
		t.Fatalf("short clip not suppressed: %+v", res)
	}
	if calls.Load() != 0 {
		t.Fatalf("remote called %d times for a suppressed clip", calls.Load())
	}
}

func TestLongClipIsUploadedAsWAV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model field = %q", got)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		header := make([]byte, 4)
		if _, err := f.Read(header); err != nil || string(header) != "RIFF" {
			t.Errorf("upload is not a WAV file: %q %v", header, err)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("authorization = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "hello world"})
	}))
	defer srv.Close()

	c := New(srv.URL, "key", "whisper-1")

	// 2 seconds at 16 kHz, over the threshold.
	res, err := c.Transcribe(context.Background(), make([]float32, 32000), 16000)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if res.Suppressed || res.Text != "hello world" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(srv.URL, "key", "whisper-1")
	if _, err := c.Transcribe(context.Background(), make([]float32, 32000), 16000); err == nil {
		t.Fatal("expected error from failing endpoint")
	}
}
