package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a publish job. The ladder interleaves
// a processing and a done status per step so the workflow manager can
// resume a job exactly where it stopped.
type Status string

const (
	StatusPending      Status = "pending"
	StatusCreating     Status = "creating"
	StatusCreated      Status = "created"
	StatusUploading    Status = "uploading"
	StatusUploaded     Status = "uploaded"
	StatusTranscoding  Status = "transcoding"
	StatusTranscoded   Status = "transcoded"
	StatusThumbnailing Status = "thumbnailing"
	StatusThumbnailed  Status = "thumbnailed"
	StatusUpdating     Status = "updating"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusReview       Status = "review"
)

var allStatuses = []Status{
	StatusPending,
	StatusCreating,
	StatusCreated,
	StatusUploading,
	StatusUploaded,
	StatusTranscoding,
	StatusTranscoded,
	StatusThumbnailing,
	StatusThumbnailed,
	StatusUpdating,
	StatusCompleted,
	StatusFailed,
	StatusReview,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusCreating:     {},
	StatusUploading:    {},
	StatusTranscoding:  {},
	StatusThumbnailing: {},
	StatusUpdating:     {},
}

// Step names the five ordered publish steps.
type Step string

const (
	StepCreate    Step = "create"
	StepUpload    Step = "upload"
	StepProcess   Step = "process"
	StepThumbnail Step = "thumbnail"
	StepUpdate    Step = "update"
)

// Steps returns the publish steps in execution order.
func Steps() []Step {
	return []Step{StepCreate, StepUpload, StepProcess, StepThumbnail, StepUpdate}
}

// stepLadder maps each step to its entry, processing, and done statuses.
var stepLadder = map[Step]struct {
	entry      Status
	processing Status
	done       Status
}{
	StepCreate:    {StatusPending, StatusCreating, StatusCreated},
	StepUpload:    {StatusCreated, StatusUploading, StatusUploaded},
	StepProcess:   {StatusUploaded, StatusTranscoding, StatusTranscoded},
	StepThumbnail: {StatusTranscoded, StatusThumbnailing, StatusThumbnailed},
	StepUpdate:    {StatusThumbnailed, StatusUpdating, StatusCompleted},
}

// EntryStatus returns the status at which a step becomes runnable.
func (s Step) EntryStatus() Status { return stepLadder[s].entry }

// ProcessingStatus returns the status a job carries while the step runs.
func (s Step) ProcessingStatus() Status { return stepLadder[s].processing }

// DoneStatus returns the status persisted when the step completes.
func (s Step) DoneStatus() Status { return stepLadder[s].done }

// StepForProcessing returns the step that owns a processing status.
func StepForProcessing(status Status) (Step, bool) {
	for _, step := range Steps() {
		if stepLadder[step].processing == status {
			return step, true
		}
	}
	return "", false
}

// ResumeStatusFor returns the entry status for the step a job failed in,
// so retry re-runs that step without rewinding earlier ones.
func ResumeStatusFor(failedFrom Status) Status {
	if step, ok := StepForProcessing(failedFrom); ok {
		return step.EntryStatus()
	}
	return StatusPending
}

// StepState is the per-step view surfaced to the CLI.
type StepState string

const (
	StepPending    StepState = "pending"
	StepInProgress StepState = "in_progress"
	StepDone       StepState = "done"
	StepFailed     StepState = "failed"
)

// ladderIndex orders statuses along the happy path for done/pending
// comparisons; failed and review sit outside the ladder.
var ladderIndex = func() map[Status]int {
	order := []Status{
		StatusPending, StatusCreating, StatusCreated, StatusUploading, StatusUploaded,
		StatusTranscoding, StatusTranscoded, StatusThumbnailing, StatusThumbnailed,
		StatusUpdating, StatusCompleted,
	}
	index := make(map[Status]int, len(order))
	for i, status := range order {
		index[status] = i
	}
	return index
}()

// StepStates derives the per-step view from a job's queue status and
// failure marker, in execution order.
func (j *Job) StepStates() map[Step]StepState {
	states := make(map[Step]StepState, len(stepLadder))
	position, onLadder := ladderIndex[j.Status]
	for _, step := range Steps() {
		ladder := stepLadder[step]
		switch {
		case (j.Status == StatusFailed || j.Status == StatusReview) && j.FailedFrom == ladder.processing:
			states[step] = StepFailed
		case !onLadder:
			// Failed/review jobs: steps finished before the failure stay
			// done, later ones stay pending.
			resumePos := ladderIndex[ResumeStatusFor(j.FailedFrom)]
			if ladderIndex[ladder.done] <= resumePos {
				states[step] = StepDone
			} else {
				states[step] = StepPending
			}
		case j.Status == ladder.processing:
			states[step] = StepInProgress
		case position >= ladderIndex[ladder.done]:
			states[step] = StepDone
		default:
			states[step] = StepPending
		}
	}
	return states
}

// Job represents a publish job persisted in SQLite.
type Job struct {
	ID               int64
	Brand            string
	Title            string
	Slug             string
	ShortDescription string
	LongDescription  string
	PublishAt        time.Time
	VideoFile        string
	ThumbnailFile    string
	Status           Status
	FailedFrom       Status
	RecordID         int64
	CDNVideoID       string
	CDNLibraryID     int64
	SessionJSON      string
	ThumbnailURL     string
	ErrorMessage     string
	NeedsReview      bool
	ReviewReason     string
	ProgressStep     string
	ProgressPercent  float64
	ProgressMessage  string
	ProgressBytes    int64
	TotalBytes       int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastHeartbeat    *time.Time
}

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Review     int
	Completed  int
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessing returns true when the status reflects an in-flight step.
func (j Job) IsProcessing() bool {
	_, ok := processingStatuses[j.Status]
	return ok
}

// IsProcessingStatus reports whether a status reflects an in-flight step.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsTerminal reports whether a job needs no further pipeline work.
func (j Job) IsTerminal() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusReview:
		return true
	default:
		return false
	}
}

// SetProgress updates all three progress fields together.
func (j *Job) SetProgress(step, message string, percent float64) {
	j.ProgressStep = step
	j.ProgressMessage = message
	j.ProgressPercent = percent
}

// SetFailed marks the job as failed with the given error message,
// remembering the step it failed in so retry can resume there.
func (j *Job) SetFailed(message string) {
	j.FailedFrom = j.Status
	j.Status = StatusFailed
	j.ErrorMessage = message
	j.ProgressPercent = 0
	j.ProgressMessage = message
	j.LastHeartbeat = nil
}

// SetReview parks the job for manual review with a reason.
func (j *Job) SetReview(reason string) {
	j.FailedFrom = j.Status
	j.Status = StatusReview
	j.NeedsReview = true
	j.ReviewReason = reason
	j.ErrorMessage = reason
	j.ProgressPercent = 0
	j.ProgressMessage = reason
	j.LastHeartbeat = nil
}
