package state

import "time"

// Role identifies who produced a triage exchange entry.
type Role string

const (
	RoleCitizen  Role = "citizen"
	RoleOperator Role = "operator"
)

// Exchange is one entry in a triage session's ordered history.
type Exchange struct {
	TS   time.Time `json:"ts"`
	Role Role      `json:"role"`
	Text string    `json:"text"`
}

// TriageSession tracks one open emergency per sender.
type TriageSession struct {
	Sender       string     `json:"sender"`
	Phone        string     `json:"phone"`
	Trigger      string     `json:"trigger"`
	Context      string     `json:"context"`
	GPSLat       *float64   `json:"gps_lat"`
	GPSLon       *float64   `json:"gps_lon"`
	DispatchedTo []string   `json:"dispatched_to"`
	StartedAt    time.Time  `json:"started_at"`
	LastActivity time.Time  `json:"last_activity"`
	Exchanges    []Exchange `json:"exchanges"`
}

// RestrictionEntry records a responder-imposed lockout of a sender.
type RestrictionEntry struct {
	Sender    string    `json:"sender"`
	Phone     string    `json:"phone"`
	LockedBy  string    `json:"locked_by"`
	CreatedAt time.Time `json:"created_at"`
	Expiry    time.Time `json:"expiry"`
}

// PendingMenu marks a sender who was shown the guided numeric intake and has
// not yet replied.
type PendingMenu struct {
	Sender   string    `json:"sender"`
	GPSLat   *float64  `json:"gps_lat"`
	GPSLon   *float64  `json:"gps_lon"`
	IssuedAt time.Time `json:"issued_at"`
}

// ConversationTurn is one entry in the non-emergency rolling chat window.
type ConversationTurn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}
