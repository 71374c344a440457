package domain

import "time"

// Profile carries the brand attributes used to render the generation prompt.
// It is owned by the onboarding flows; this pipeline only reads it.
type Profile struct {
	ID               string
	UserID           string
	BrandName        string
	Industry         string
	BrandDescription string
	VoiceDescription string
	PrimaryGoal      string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
