package domain

import "time"

// ReviewStatus is the initial moderation state of freshly generated content.
type ReviewStatus string

const (
	ReviewStatusAwaiting ReviewStatus = "AWAITING_REVIEW"
)

// ContentIdea is one generated content item, tagged with the batch that
// produced it. Rows are written in a single bulk insert per successful run.
type ContentIdea struct {
	ID             string
	UserID         string
	BatchID        string
	Title          string
	Body           string
	Tags           []string
	SuggestedMedia string
	ReviewStatus   ReviewStatus
	CreatedAt      time.Time
}
