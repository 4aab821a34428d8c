package domain

import (
	"math"
	"time"
)

// JobKind enumerates the media artifact categories a batch job can produce.
type JobKind string

const (
	JobKindImage     JobKind = "image"
	JobKindVideo     JobKind = "video"
	JobKindVoiceover JobKind = "voiceover"
	JobKindMusic     JobKind = "music"
	JobKindSceneText JobKind = "scene_text"
)

// KnownJobKinds lists every supported kind, used to validate submissions.
var KnownJobKinds = []JobKind{
	JobKindImage,
	JobKindVideo,
	JobKindVoiceover,
	JobKindMusic,
	JobKindSceneText,
}

// Valid reports whether k is a supported job kind.
func (k JobKind) Valid() bool {
	for _, known := range KnownJobKinds {
		if k == known {
			return true
		}
	}
	return false
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending             JobStatus = "pending"
	JobStatusProcessing          JobStatus = "processing"
	JobStatusCompleted           JobStatus = "completed"
	JobStatusCompletedWithErrors JobStatus = "completed_with_errors"
	JobStatusFailed              JobStatus = "failed"
	JobStatusCancelled           JobStatus = "cancelled"
)

// Terminal reports whether no further automatic transition can occur.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusCompletedWithErrors, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Job is one batch request to generate multiple media artifacts of one kind.
type Job struct {
	ID             string
	ProjectID      string
	UserID         string
	Kind           JobKind
	Status         JobStatus
	TotalItems     int
	CompletedItems int
	FailedItems    int
	Provider       string
	Model          string
	Voice          string
	Style          string
	AspectRatio    string
	Locale         string
	ErrorDetails   string
	RequeuedFrom   string
	FreeGeneration bool
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	UpdatedAt      time.Time
}

// Progress derives the integer completion percentage from the counters.
// Both succeeded and failed items count as done: a batch is over once every
// item reached a terminal outcome, regardless of how it went.
func (j *Job) Progress() int {
	if j.TotalItems <= 0 {
		return 0
	}
	done := j.CompletedItems + j.FailedItems
	if done > j.TotalItems {
		done = j.TotalItems
	}
	return int(math.Round(100 * float64(done) / float64(j.TotalItems)))
}

// ItemStatus enumerates per-item outcomes.
type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusSucceeded ItemStatus = "succeeded"
	ItemStatusFailed    ItemStatus = "failed"
)

// Item is one unit of work inside a job, e.g. one scene's image.
type Item struct {
	ID           string
	JobID        string
	Position     int
	SceneID      string
	CharacterID  string
	Prompt       string
	Status       ItemStatus
	ArtifactRef  string
	ErrorMessage string
	Attempts     int
	UpdatedAt    time.Time
}

// ProviderConfig is the resolved per-user provider selection for one job.
// It is fetched once at submission and treated as an immutable snapshot.
type ProviderConfig struct {
	Provider    string
	Model       string
	Voice       string
	Style       string
	AspectRatio string
	Locale      string
	// FreeGeneration bypasses the balance check; set for promotional or
	// admin-granted jobs. Charges are still ledgered at zero credits.
	FreeGeneration bool
}
