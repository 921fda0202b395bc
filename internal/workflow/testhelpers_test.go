package workflow_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeSite simulates the site backend plus the CDN upload endpoint in a
// single server. Encode-status responses are scripted per poll.
type fakeSite struct {
	mu sync.Mutex

	createCalls    int
	initCalls      int
	encodePolls    int
	finalizeCalls  int
	thumbnailCalls int
	updateCalls    int
	uploadedBytes  int
	cdnOffset      int64

	encodeScript []map[string]any
	updateBody   map[string]any

	server *httptest.Server
}

func newFakeSite(t *testing.T, encodeScript []map[string]any) *fakeSite {
	t.Helper()
	site := &fakeSite{encodeScript: encodeScript}
	site.server = httptest.NewServer(http.HandlerFunc(site.handle))
	t.Cleanup(site.server.Close)
	return site
}

func (s *fakeSite) URL() string { return s.server.URL }

func (s *fakeSite) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case r.URL.Path == "/cdn-upload":
		s.handleCDN(w, r)
	case strings.HasSuffix(r.URL.Path, "/uploads"):
		s.initCalls++
		_ = json.NewEncoder(w).Encode(map[string]any{
			"video_id":        "guid-e2e",
			"library_id":      11,
			"upload_endpoint": s.server.URL + "/cdn-upload",
			"signature":       "sig-e2e",
			"expires":         time.Now().Add(time.Hour).Unix(),
		})
	case strings.HasSuffix(r.URL.Path, "/encode-status"):
		response := s.encodeScript[len(s.encodeScript)-1]
		if s.encodePolls < len(s.encodeScript) {
			response = s.encodeScript[s.encodePolls]
		}
		s.encodePolls++
		_ = json.NewEncoder(w).Encode(response)
	case strings.HasSuffix(r.URL.Path, "/encode-complete"):
		s.finalizeCalls++
		w.WriteHeader(http.StatusOK)
	case strings.HasSuffix(r.URL.Path, "/thumbnail"):
		s.thumbnailCalls++
		_ = json.NewEncoder(w).Encode(map[string]string{"thumbnail_url": "https://cdn.test/e2e.jpg"})
	case r.Method == http.MethodPatch:
		s.updateCalls++
		_ = json.NewDecoder(r.Body).Decode(&s.updateBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 1})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/sponsor-videos"):
		s.createCalls++
		_ = json.NewEncoder(w).Encode(map[string]any{"video": map[string]any{"id": 99}})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *fakeSite) handleCDN(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Upload-Offset", strconv.FormatInt(s.cdnOffset, 10))
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		s.uploadedBytes += len(body)
		s.cdnOffset += int64(len(body))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *fakeSite) snapshot() fakeSiteCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fakeSiteCounts{
		create:    s.createCalls,
		init:      s.initCalls,
		polls:     s.encodePolls,
		finalize:  s.finalizeCalls,
		thumbnail: s.thumbnailCalls,
		update:    s.updateCalls,
		uploaded:  s.uploadedBytes,
		body:      s.updateBody,
	}
}

type fakeSiteCounts struct {
	create, init, polls, finalize, thumbnail, update, uploaded int
	body                                                       map[string]any
}

// recordingNotifier captures notification calls for assertions.
type recordingNotifier struct {
	mu        sync.Mutex
	started   []string
	completed []string
	failed    []string
	reviews   []string
	drained   int
}

func (n *recordingNotifier) NotifyPublishStarted(_ context.Context, title string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started = append(n.started, title)
	return nil
}

func (n *recordingNotifier) NotifyPublishCompleted(_ context.Context, title, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, title)
	return nil
}

func (n *recordingNotifier) NotifyPublishFailed(_ context.Context, title, step string, _ error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, title+"/"+step)
	return nil
}

func (n *recordingNotifier) NotifyReviewRequired(_ context.Context, title, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reviews = append(n.reviews, title)
	return nil
}

func (n *recordingNotifier) NotifyQueueCompleted(_ context.Context, _, _ int, _ time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.drained++
	return nil
}

func (n *recordingNotifier) TestNotification(context.Context) error { return nil }
