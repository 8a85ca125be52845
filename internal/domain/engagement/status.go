package engagement

import "time"

// StatusUpdate is the payload pushed to clients after every state change.
// UpdatedAt is the student's UpdatedAt after the change; clients drop
// updates older than what they already hold.
type StatusUpdate struct {
	Status       State         `json:"status"`
	Intervention *Intervention `json:"intervention,omitempty"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// StatusView is the authoritative status returned to polling clients.
type StatusView struct {
	Student      *Student      `json:"student"`
	Intervention *Intervention `json:"intervention"`
}
