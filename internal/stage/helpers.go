package stage

import (
	"vidpress/internal/queue"
	"vidpress/internal/services"
)

// RequireSession loads the stored upload session from a job. Stages past
// the upload step depend on the session's CDN identifiers, so a missing
// or corrupt session is a validation failure rather than a transient one.
func RequireSession(job *queue.Job, step string) (*queue.UploadSession, error) {
	session, err := job.Session()
	if err != nil {
		return nil, services.Wrap(
			services.ErrValidation, "stage", step,
			"Stored upload session is corrupt; retry from the upload step", err)
	}
	if session == nil || session.VideoID == "" {
		return nil, services.Wrap(
			services.ErrValidation, "stage", step,
			"Job has no upload session; retry from the upload step", nil)
	}
	return session, nil
}

// RequireRecord checks that the backend record was created before a later
// step tries to reference it.
func RequireRecord(job *queue.Job, step string) error {
	if job.RecordID == 0 {
		return services.Wrap(
			services.ErrValidation, "stage", step,
			"Job has no backend record; retry from the create step", nil)
	}
	return nil
}
