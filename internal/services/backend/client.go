package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"vidpress/internal/config"
	"vidpress/internal/queue"
	"vidpress/internal/services"
	"vidpress/internal/textutil"
)

const userAgent = "vidpress/0.1.0"

// EncodeState is the CDN transcode state reported by the backend proxy.
type EncodeState string

const (
	EncodeProcessing EncodeState = "processing"
	EncodeReady      EncodeState = "ready"
	EncodeFailed     EncodeState = "failed"
)

// EncodeStatus is one poll result from the encode-status endpoint.
type EncodeStatus struct {
	State    EncodeState `json:"state"`
	Progress float64     `json:"encode_progress"`
	Message  string      `json:"message"`
}

// VideoMetadata carries the sponsor-video fields shared by the create and
// update calls.
type VideoMetadata struct {
	Title            string    `json:"title"`
	Slug             string    `json:"slug"`
	ShortDescription string    `json:"short_description"`
	LongDescription  string    `json:"long_description,omitempty"`
	PublishAt        time.Time `json:"created_at"`
}

// Client talks to the site backend's sponsor-video API for one brand.
type Client struct {
	baseURL string
	token   string
	brand   string
	http    *http.Client
}

// New builds a backend client from configuration.
func New(cfg *config.Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.Backend.BaseURL, "/"),
		token:   cfg.Backend.APIToken,
		brand:   cfg.Backend.Brand,
		http:    &http.Client{Timeout: cfg.BackendTimeout()},
	}
}

// Brand returns the brand scope this client operates under.
func (c *Client) Brand() string { return c.brand }

func (c *Client) brandURL(suffix string) string {
	return fmt.Sprintf("%s/api/brands/%s/sponsor-videos%s", c.baseURL, c.brand, suffix)
}

// CreateVideo posts draft metadata and returns the persisted record id.
// A 422 response decodes into FieldErrors and routes to review.
func (c *Client) CreateVideo(ctx context.Context, meta VideoMetadata) (int64, error) {
	var out struct {
		Video struct {
			ID int64 `json:"id"`
		} `json:"video"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.brandURL(""), meta, &out, "create sponsor video"); err != nil {
		return 0, err
	}
	if out.Video.ID == 0 {
		return 0, services.Wrap(services.ErrRemote, "backend", "create sponsor video",
			"Backend returned no record id", nil)
	}
	return out.Video.ID, nil
}

// InitUpload mints a fresh signed CDN upload session.
func (c *Client) InitUpload(ctx context.Context) (*queue.UploadSession, error) {
	var session queue.UploadSession
	if err := c.doJSON(ctx, http.MethodPost, c.brandURL("/uploads"), struct{}{}, &session, "init upload session"); err != nil {
		return nil, err
	}
	if session.VideoID == "" || session.UploadEndpoint == "" {
		return nil, services.Wrap(services.ErrRemote, "backend", "init upload session",
			"Backend returned an incomplete upload session", nil)
	}
	return &session, nil
}

// EncodeStatus asks the backend-proxied CDN for the current transcode state.
func (c *Client) EncodeStatus(ctx context.Context, videoID string, libraryID int64) (EncodeStatus, error) {
	payload := map[string]any{"video_id": videoID, "library_id": libraryID}
	var status EncodeStatus
	if err := c.doJSON(ctx, http.MethodPost, c.brandURL("/encode-status"), payload, &status, "poll encode status"); err != nil {
		return EncodeStatus{}, err
	}
	return status, nil
}

// FinalizeEncode records on the backend that CDN encoding completed.
func (c *Client) FinalizeEncode(ctx context.Context, videoID string, libraryID int64) error {
	payload := map[string]any{"video_id": videoID, "library_id": libraryID}
	return c.doJSON(ctx, http.MethodPost, c.brandURL("/encode-complete"), payload, nil, "finalize encode")
}

// UploadThumbnail sends the thumbnail image as multipart form data scoped
// to the CDN video and returns the hosted thumbnail URL.
func (c *Client) UploadThumbnail(ctx context.Context, path, videoID string, libraryID int64) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "backend", "upload thumbnail",
			"Thumbnail file is not readable", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("thumbnail", textutil.SanitizeFileName(filepath.Base(path)))
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "backend", "upload thumbnail",
			"Failed to build multipart body", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", services.Wrap(services.ErrTransient, "backend", "upload thumbnail",
			"Failed to read thumbnail file", err)
	}
	if err := writer.WriteField("video_id", videoID); err != nil {
		return "", services.Wrap(services.ErrTransient, "backend", "upload thumbnail",
			"Failed to build multipart body", err)
	}
	if err := writer.WriteField("library_id", strconv.FormatInt(libraryID, 10)); err != nil {
		return "", services.Wrap(services.ErrTransient, "backend", "upload thumbnail",
			"Failed to build multipart body", err)
	}
	if err := writer.Close(); err != nil {
		return "", services.Wrap(services.ErrTransient, "backend", "upload thumbnail",
			"Failed to build multipart body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.brandURL("/thumbnail"), &body)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "backend", "upload thumbnail",
			"Failed to build request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.setCommonHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "backend", "upload thumbnail",
			"Backend request failed", err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, "upload thumbnail"); err != nil {
		return "", err
	}

	var out struct {
		ThumbnailURL string `json:"thumbnail_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", services.Wrap(services.ErrRemote, "backend", "upload thumbnail",
			"Failed to decode response", err)
	}
	return out.ThumbnailURL, nil
}

// UpdateVideo patches the persisted record with final metadata plus the
// CDN identifiers, marking it ready for public display.
func (c *Client) UpdateVideo(ctx context.Context, recordID int64, meta VideoMetadata, videoID string, libraryID int64, thumbnailURL string) error {
	payload := struct {
		VideoMetadata
		CDNVideoID   string `json:"cdn_video_id"`
		CDNLibraryID int64  `json:"cdn_library_id"`
		ThumbnailURL string `json:"thumbnail_url,omitempty"`
	}{
		VideoMetadata: meta,
		CDNVideoID:    videoID,
		CDNLibraryID:  libraryID,
		ThumbnailURL:  thumbnailURL,
	}
	url := fmt.Sprintf("%s/%d", c.brandURL(""), recordID)
	return c.doJSON(ctx, http.MethodPatch, url, payload, nil, "update sponsor video")
}

// Ping verifies the backend is reachable and the token is accepted.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "backend", "ping",
			"Backend base URL is invalid", err)
	}
	c.setCommonHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "backend", "ping",
			"Backend is unreachable", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return services.Wrap(services.ErrConfiguration, "backend", "ping",
			"Backend rejected the API token", nil)
	}
	if resp.StatusCode >= 500 {
		return services.Wrap(services.ErrTransient, "backend", "ping",
			fmt.Sprintf("Backend returned %d", resp.StatusCode), nil)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, url string, payload, out any, operation string) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return services.Wrap(services.ErrTransient, "backend", operation,
				"Failed to encode request body", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return services.Wrap(services.ErrTransient, "backend", operation,
			"Failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setCommonHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "backend", operation,
			"Backend request failed", err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, operation); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrRemote, "backend", operation,
			"Failed to decode response", err)
	}
	return nil
}

func (c *Client) setCommonHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
}

// checkStatus converts non-2xx responses to tagged errors. A 422 decodes
// the backend's per-field validation payload into FieldErrors.
func (c *Client) checkStatus(resp *http.Response, operation string) error {
	if resp.StatusCode < 300 {
		return nil
	}

	if resp.StatusCode == http.StatusUnprocessableEntity {
		var payload struct {
			Errors services.FieldErrors `json:"errors"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && len(payload.Errors) > 0 {
			return services.ValidationError("backend", operation, payload.Errors)
		}
		return services.Wrap(services.ErrValidation, "backend", operation,
			"Backend rejected the request as invalid", nil)
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	detail := fmt.Sprintf("Backend returned %d", resp.StatusCode)
	if trimmed := strings.TrimSpace(string(snippet)); trimmed != "" {
		detail = fmt.Sprintf("%s: %s", detail, trimmed)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "backend", operation, detail, nil)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrConfiguration, "backend", operation, detail, nil)
	case resp.StatusCode >= 500:
		return services.Wrap(services.ErrTransient, "backend", operation, detail, nil)
	default:
		return services.Wrap(services.ErrRemote, "backend", operation, detail, nil)
	}
}
