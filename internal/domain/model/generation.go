package model

import "time"

type GenerationStatus string

const (
	GenerationStatusCompleted GenerationStatus = "COMPLETED"
)

// Generation is one persisted output image. A row exists only for images
// whose credit debit succeeded.
type Generation struct {
	ID          string
	OwnerID     string
	JobID       string
	Prompt      string
	AspectRatio string
	URL         string
	Status      GenerationStatus
	NodeID      string
	CreatedAt   time.Time
}
