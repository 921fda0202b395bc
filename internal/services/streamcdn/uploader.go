package streamcdn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"vidpress/internal/queue"
	"vidpress/internal/services"
)

const offsetHeader = "Upload-Offset"

// ProgressFunc receives upload progress. Percent is monotonically
// non-decreasing within [0,100] for a single attempt.
type ProgressFunc func(percent float64, uploaded, total int64)

// Uploader performs chunked, resumable uploads against a signed CDN
// session. A stall watchdog aborts the transport when no bytes move for
// the configured timeout.
type Uploader struct {
	http         *http.Client
	chunkSize    int64
	stallTimeout time.Duration
}

// NewUploader builds an uploader. chunkSize is in bytes.
func NewUploader(chunkSize int64, stallTimeout time.Duration) *Uploader {
	if chunkSize <= 0 {
		chunkSize = 8 * 1024 * 1024
	}
	return &Uploader{
		http:         &http.Client{},
		chunkSize:    chunkSize,
		stallTimeout: stallTimeout,
	}
}

// Upload streams the file at path to the session's upload endpoint. It
// probes the remote offset first and resumes an interrupted upload rather
// than restarting from byte zero.
func (u *Uploader) Upload(ctx context.Context, session *queue.UploadSession, path string, progress ProgressFunc) error {
	file, err := os.Open(path)
	if err != nil {
		return services.Wrap(services.ErrValidation, "upload", "open video file",
			"Video file is not readable", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return services.Wrap(services.ErrValidation, "upload", "stat video file",
			"Video file is not readable", err)
	}
	total := info.Size()
	if total == 0 {
		return services.Wrap(services.ErrValidation, "upload", "stat video file",
			"Video file is empty", nil)
	}

	offset, err := u.remoteOffset(ctx, session)
	if err != nil {
		return err
	}
	if offset > total {
		// Remote state does not match this file; start over.
		offset = 0
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	watchdog := newStallWatchdog(u.stallTimeout, cancel)
	defer watchdog.stop()

	report := newProgressReporter(progress, total)
	report.advance(offset)

	for offset < total {
		chunk := u.chunkSize
		if remaining := total - offset; remaining < chunk {
			chunk = remaining
		}

		sent, err := u.putChunk(ctx, session, file, offset, chunk, total, func(n int64) {
			watchdog.kick()
			report.advance(offset + n)
		})
		offset += sent
		if err != nil {
			if watchdog.stalled() {
				return services.Wrap(services.ErrStalled, "upload", "put chunk",
					fmt.Sprintf("No upload progress for %s; transport aborted", u.stallTimeout), nil)
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return services.Wrap(services.ErrTransient, "upload", "put chunk",
					"Upload cancelled", err)
			}
			return err
		}
	}

	report.advance(total)
	return nil
}

// remoteOffset asks the CDN how many bytes it already holds for this
// session, so a retried upload continues where it stopped.
func (u *Uploader) remoteOffset(ctx context.Context, session *queue.UploadSession) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, session.UploadEndpoint, nil)
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "upload", "probe offset",
			"Upload endpoint is invalid", err)
	}
	setSessionHeaders(req, session)

	resp, err := u.http.Do(req)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "upload", "probe offset",
			"CDN offset probe failed", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return 0, nil
	}
	if resp.StatusCode >= 300 {
		return 0, services.Wrap(services.ErrRemote, "upload", "probe offset",
			fmt.Sprintf("CDN returned %d", resp.StatusCode), nil)
	}

	raw := resp.Header.Get(offsetHeader)
	if raw == "" {
		return 0, nil
	}
	offset, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || offset < 0 {
		return 0, nil
	}
	return offset, nil
}

// putChunk uploads one chunk and returns the bytes the CDN acknowledged.
func (u *Uploader) putChunk(ctx context.Context, session *queue.UploadSession, file *os.File, offset, length, total int64, onProgress func(int64)) (int64, error) {
	section := io.NewSectionReader(file, offset, length)
	body := &countingReader{inner: section, onRead: onProgress}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session.UploadEndpoint, body)
	if err != nil {
		return 0, services.Wrap(services.ErrValidation, "upload", "put chunk",
			"Upload endpoint is invalid", err)
	}
	req.ContentLength = length
	req.Header.Set(offsetHeader, strconv.FormatInt(offset, 10))
	req.Header.Set("Content-Type", "application/offset+octet-stream")
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, total))
	setSessionHeaders(req, session)

	resp, err := u.http.Do(req)
	if err != nil {
		// The transport may have moved bytes before dying; they are not
		// acknowledged, so the next attempt re-probes the offset.
		return 0, services.Wrap(services.ErrTransient, "upload", "put chunk",
			"CDN chunk upload failed", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return 0, services.Wrap(services.ErrRemote, "upload", "put chunk",
			fmt.Sprintf("CDN returned %d", resp.StatusCode), nil)
	}
	return length, nil
}

func setSessionHeaders(req *http.Request, session *queue.UploadSession) {
	req.Header.Set("AuthorizationSignature", session.Signature)
	req.Header.Set("AuthorizationExpire", strconv.FormatInt(session.Expires, 10))
	req.Header.Set("VideoId", session.VideoID)
	req.Header.Set("LibraryId", strconv.FormatInt(session.LibraryID, 10))
}

// countingReader reports cumulative bytes read from the current chunk.
type countingReader struct {
	inner  io.Reader
	onRead func(int64)
	read   int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	if n > 0 {
		r.read += int64(n)
		if r.onRead != nil {
			r.onRead(r.read)
		}
	}
	return n, err
}

// progressReporter clamps progress to a monotonically non-decreasing
// percentage in [0,100].
type progressReporter struct {
	mu       sync.Mutex
	fn       ProgressFunc
	total    int64
	best     int64
	lastPct  float64
	reported bool
}

func newProgressReporter(fn ProgressFunc, total int64) *progressReporter {
	return &progressReporter{fn: fn, total: total}
}

func (p *progressReporter) advance(uploaded int64) {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if uploaded < p.best && p.reported {
		return
	}
	if uploaded > p.total {
		uploaded = p.total
	}
	p.best = uploaded

	pct := float64(uploaded) / float64(p.total) * 100
	if pct < p.lastPct {
		pct = p.lastPct
	}
	if pct > 100 {
		pct = 100
	}
	p.lastPct = pct
	p.reported = true
	p.fn(pct, uploaded, p.total)
}

// stallWatchdog aborts the transport when no progress arrives within the
// timeout. The abort fires at most once; kicks after settling are no-ops.
type stallWatchdog struct {
	mu      sync.Mutex
	timer   *time.Timer
	timeout time.Duration
	settled bool
	fired   bool
}

func newStallWatchdog(timeout time.Duration, abort context.CancelFunc) *stallWatchdog {
	w := &stallWatchdog{timeout: timeout}
	if timeout <= 0 {
		return w
	}
	w.timer = time.AfterFunc(timeout, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.settled {
			return
		}
		w.settled = true
		w.fired = true
		abort()
	})
	return w
}

func (w *stallWatchdog) kick() {
	if w.timer == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.settled {
		return
	}
	w.timer.Reset(w.timeout)
}

func (w *stallWatchdog) stop() {
	if w.timer == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.settled = true
	w.timer.Stop()
}

func (w *stallWatchdog) stalled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fired
}
