package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// UploadSession is the signed CDN upload session minted by the backend.
// Sessions are never mutated, only replaced.
type UploadSession struct {
	VideoID        string `json:"video_id"`
	LibraryID      int64  `json:"library_id"`
	UploadEndpoint string `json:"upload_endpoint"`
	Signature      string `json:"signature"`
	Expires        int64  `json:"expires"`
}

// ExpiresWithin reports whether the session expires inside the given
// window from now. A session close to expiry is re-minted instead of
// risking a signature rejection mid-upload.
func (s *UploadSession) ExpiresWithin(window time.Duration) bool {
	if s == nil {
		return true
	}
	return time.Unix(s.Expires, 0).Before(time.Now().Add(window))
}

// Session decodes the stored upload session, if any.
func (j *Job) Session() (*UploadSession, error) {
	if j.SessionJSON == "" {
		return nil, nil
	}
	var session UploadSession
	if err := json.Unmarshal([]byte(j.SessionJSON), &session); err != nil {
		return nil, fmt.Errorf("decode upload session: %w", err)
	}
	return &session, nil
}

// SetSession stores a replacement upload session on the job.
func (j *Job) SetSession(session *UploadSession) error {
	if session == nil {
		j.SessionJSON = ""
		return nil
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode upload session: %w", err)
	}
	j.SessionJSON = string(data)
	return nil
}
