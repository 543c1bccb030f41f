package auditlog

import "time"

// EventType tags every audit record with one of the closed set of types.
type EventType string

const (
	TypeRX                EventType = "rx"
	TypeSOSDispatch       EventType = "sos_dispatch"
	TypeSOS911Triggered   EventType = "sos_911_triggered"
	TypeSOS911NoResponse  EventType = "sos_911_no_response"
	TypeSOSFalseAlarm     EventType = "sos_false_alarm"
	TypeTriageExchange    EventType = "triage_exchange"
	TypeGeneralExchange   EventType = "general_exchange"
	TypeSOSClosed         EventType = "sos_closed"
	TypeRestricted        EventType = "restricted"
	TypeRestrictionLifted EventType = "restriction_lifted"
	TypeRestrictionExpire EventType = "restriction_expired"
	TypeCommand           EventType = "command"
	TypeBouncerDrop       EventType = "bouncer_drop"
	TypeSystem            EventType = "system"
)

// Event is one structured audit record. Fields beyond Type/TS/Sender are
// populated per event type; absent fields are omitted from the encoded line.
type Event struct {
	ID      string    `json:"id,omitempty"`
	Type    EventType `json:"type"`
	TS      time.Time `json:"ts"`
	Sender  string    `json:"sender,omitempty"`
	Phone   string    `json:"phone,omitempty"`
	Message string    `json:"message,omitempty"`

	Trigger  string   `json:"trigger,omitempty"`
	Context  string   `json:"context,omitempty"`
	GPSLat   *float64 `json:"gps_lat,omitempty"`
	GPSLon   *float64 `json:"gps_lon,omitempty"`
	RoutedTo string   `json:"routed_to,omitempty"`

	Reason          string `json:"reason,omitempty"`
	ExchangeCount   int    `json:"exchange_count,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`

	Citizen  string `json:"citizen,omitempty"`
	Operator string `json:"operator,omitempty"`

	Command         string `json:"command,omitempty"`
	LockedBy        string `json:"locked_by,omitempty"`
	LiftedBy        string `json:"lifted_by,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	Method          string `json:"method,omitempty"`

	SystemEvent string `json:"event,omitempty"`
	Detail      string `json:"detail,omitempty"`
}
