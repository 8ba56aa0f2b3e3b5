package domain

import "time"

// DateLayout is the calendar-date wire format used for draft dates.
const DateLayout = "2006-01-02"

// AuditFields records who created a movement and who committed it last.
type AuditFields struct {
	CreatedAt     time.Time `json:"createdAt"`
	CreatedBy     string    `json:"createdBy"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
	LastUpdatedBy string    `json:"lastUpdatedBy"`
}

// Stamp fills the audit fields for a commit by userID. The creation pair is carried over from
// previous when the movement already exists.
func (a *AuditFields) Stamp(previous *AuditFields, userID string, now time.Time) {
	if previous != nil {
		a.CreatedAt, a.CreatedBy = previous.CreatedAt, previous.CreatedBy
	} else {
		a.CreatedAt, a.CreatedBy = now, userID
	}
	a.LastUpdatedAt, a.LastUpdatedBy = now, userID
}
