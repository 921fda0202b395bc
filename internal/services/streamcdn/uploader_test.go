package streamcdn_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"vidpress/internal/queue"
	"vidpress/internal/services"
	"vidpress/internal/services/streamcdn"
	"vidpress/internal/testsupport"
)

type chunkServer struct {
	mu           sync.Mutex
	received     []byte
	startOffset  int64
	probeOffsets []int64
	putOffsets   []int64
	putHeaders   []http.Header
	aborted      int
}

func (s *chunkServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		switch r.Method {
		case http.MethodGet:
			s.probeOffsets = append(s.probeOffsets, s.startOffset)
			w.Header().Set("Upload-Offset", strconv.FormatInt(s.startOffset, 10))
			w.WriteHeader(http.StatusOK)
		case http.MethodPut:
			offset, _ := strconv.ParseInt(r.Header.Get("Upload-Offset"), 10, 64)
			s.putOffsets = append(s.putOffsets, offset)
			s.putHeaders = append(s.putHeaders, r.Header.Clone())
			body, err := io.ReadAll(r.Body)
			if err != nil {
				s.aborted++
				return
			}
			s.received = append(s.received, body...)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

func newSession(url string) *queue.UploadSession {
	return &queue.UploadSession{
		VideoID:        "guid-1",
		LibraryID:      9,
		UploadEndpoint: url,
		Signature:      "sig",
		Expires:        time.Now().Add(time.Hour).Unix(),
	}
}

func TestUploadChunksWithSignedHeaders(t *testing.T) {
	cs := &chunkServer{}
	server := httptest.NewServer(cs.handler())
	defer server.Close()

	path := filepath.Join(t.TempDir(), "video.mp4")
	testsupport.WriteFile(t, path, 10_000)

	uploader := streamcdn.NewUploader(4096, time.Minute)
	if err := uploader.Upload(context.Background(), newSession(server.URL), path, nil); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if len(cs.received) != 10_000 {
		t.Fatalf("received %d bytes", len(cs.received))
	}
	// 10000 bytes at 4096-byte chunks is three PUTs.
	wantOffsets := []int64{0, 4096, 8192}
	if len(cs.putOffsets) != len(wantOffsets) {
		t.Fatalf("put offsets = %v", cs.putOffsets)
	}
	for i, want := range wantOffsets {
		if cs.putOffsets[i] != want {
			t.Fatalf("put offsets = %v", cs.putOffsets)
		}
	}
	h := cs.putHeaders[0]
	if h.Get("AuthorizationSignature") != "sig" || h.Get("AuthorizationExpire") == "" {
		t.Fatalf("signed headers = %v", h)
	}
	if h.Get("VideoId") != "guid-1" || h.Get("LibraryId") != "9" {
		t.Fatalf("identity headers = %v", h)
	}
}

func TestUploadResumesFromRemoteOffset(t *testing.T) {
	cs := &chunkServer{startOffset: 6000}
	server := httptest.NewServer(cs.handler())
	defer server.Close()

	path := filepath.Join(t.TempDir(), "video.mp4")
	testsupport.WriteFile(t, path, 10_000)

	var first float64 = -1
	uploader := streamcdn.NewUploader(4096, time.Minute)
	err := uploader.Upload(context.Background(), newSession(server.URL), path, func(pct float64, uploaded, total int64) {
		if first < 0 {
			first = pct
		}
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if len(cs.received) != 4000 {
		t.Fatalf("received %d bytes, want only the tail", len(cs.received))
	}
	if cs.putOffsets[0] != 6000 {
		t.Fatalf("first put offset = %d", cs.putOffsets[0])
	}
	if first < 59 {
		t.Fatalf("first reported percent = %f, want resume position", first)
	}
}

func TestUploadProgressMonotonicAndBounded(t *testing.T) {
	cs := &chunkServer{}
	server := httptest.NewServer(cs.handler())
	defer server.Close()

	path := filepath.Join(t.TempDir(), "video.mp4")
	testsupport.WriteFile(t, path, 50_000)

	var mu sync.Mutex
	var percents []float64
	uploader := streamcdn.NewUploader(8192, time.Minute)
	err := uploader.Upload(context.Background(), newSession(server.URL), path, func(pct float64, uploaded, total int64) {
		mu.Lock()
		percents = append(percents, pct)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if len(percents) == 0 {
		t.Fatal("no progress reported")
	}
	prev := -1.0
	for _, pct := range percents {
		if pct < 0 || pct > 100 {
			t.Fatalf("percent %f out of bounds", pct)
		}
		if pct < prev {
			t.Fatalf("percent regressed from %f to %f", prev, pct)
		}
		prev = pct
	}
	if prev != 100 {
		t.Fatalf("final percent = %f", prev)
	}
}

func TestUploadStallAbortsTransfer(t *testing.T) {
	const stall = 150 * time.Millisecond

	var mu sync.Mutex
	puts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Header().Set("Upload-Offset", "0")
			return
		}
		mu.Lock()
		puts++
		mu.Unlock()

		// Accept the start of the body, then withhold the response long
		// enough for the client watchdog to trip. Drain afterwards so the
		// handler returns whether or not the client dropped the connection.
		buf := make([]byte, 32*1024)
		_, _ = r.Body.Read(buf)
		time.Sleep(3 * stall)
		_, _ = io.Copy(io.Discard, r.Body)
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "video.mp4")
	testsupport.WriteFile(t, path, 4*1024*1024)

	uploader := streamcdn.NewUploader(4*1024*1024, stall)
	err := uploader.Upload(context.Background(), newSession(server.URL), path, nil)
	if err == nil {
		t.Fatal("expected stall error")
	}
	if !errors.Is(err, services.ErrStalled) {
		t.Fatalf("err = %v, want stall", err)
	}

	// The abort must end the attempt; a stalled upload is never retried
	// with another chunk within the same call.
	mu.Lock()
	n := puts
	mu.Unlock()
	if n != 1 {
		t.Fatalf("put attempts = %d, want 1", n)
	}
}

func TestUploadRejectsMissingFile(t *testing.T) {
	uploader := streamcdn.NewUploader(4096, time.Minute)
	err := uploader.Upload(context.Background(), newSession("http://cdn.invalid"), "/nonexistent/video.mp4", nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}
