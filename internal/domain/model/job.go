package model

import (
	"fmt"
	"strings"
	"time"

	"canvas-imagegen/internal/domain"
)

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Resolution is the requested output tier. It determines the per-image
// credit cost.
type Resolution string

const (
	Resolution1K Resolution = "1K"
	Resolution2K Resolution = "2K"
	Resolution4K Resolution = "4K"
)

// CreditCost returns the credits debited per billed image. Unknown tiers
// bill at the lowest rate.
func (r Resolution) CreditCost() int {
	switch r {
	case Resolution2K:
		return 2
	case Resolution4K:
		return 4
	default:
		return 1
	}
}

// MaxReferenceImages caps how many reference images a single job may carry.
const MaxReferenceImages = 10

// ReferenceImage is one user-supplied image guiding the generation. Either
// URL or Data is set, never both.
type ReferenceImage struct {
	URL       string `json:"url,omitempty"`
	Data      []byte `json:"data,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
	Label     string `json:"label,omitempty"`
	StyleHint string `json:"style_hint,omitempty"`
}

// Job is one durable generation request and its processing state.
type Job struct {
	ID          string
	OwnerID     string
	Prompt      string
	AspectRatio string
	Quantity    int
	Resolution  Resolution
	References  []ReferenceImage
	// NodeID links the job back to the UI output slot that requested it.
	NodeID string

	Status     JobStatus
	Retries    int
	MaxRetries int
	NextRunAt  *time.Time
	LastError  string

	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time

	ResultCount int
	ResultURLs  []string
}

const DefaultMaxRetries = 3

// NewJob validates the payload and returns a queued job. The id is
// assigned by the repository on first save when left empty.
func NewJob(ownerID, prompt, aspectRatio string, quantity int, res Resolution, refs []ReferenceImage, nodeID string) (*Job, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", domain.ErrInvalidArgument)
	}
	if quantity < 1 {
		quantity = 1
	}
	if len(refs) > MaxReferenceImages {
		refs = refs[:MaxReferenceImages]
	}
	switch res {
	case Resolution1K, Resolution2K, Resolution4K:
	default:
		res = Resolution1K
	}
	return &Job{
		OwnerID:     ownerID,
		Prompt:      prompt,
		AspectRatio: aspectRatio,
		Quantity:    quantity,
		Resolution:  res,
		References:  refs,
		NodeID:      nodeID,
		Status:      JobStatusQueued,
		MaxRetries:  DefaultMaxRetries,
		CreatedAt:   time.Now(),
	}, nil
}

// CanRetry reports whether the job has retry budget left.
func (j *Job) CanRetry() bool {
	return j.Retries < j.MaxRetries
}
