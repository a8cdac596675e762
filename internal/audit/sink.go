package audit

import "time"

// Event actions emitted by the engines and admin flows.
const (
	ActionRegister      = "register"
	ActionRegistered    = "device_registered"
	ActionStatusCheck   = "status_check"
	ActionTrialExpired  = "trial_expired"
	ActionActivate      = "activate"
	ActionBan           = "ban"
	ActionUnban         = "unban"
	ActionExtendTrial   = "extend_trial"
	ActionResetTrial    = "reset_trial"
	ActionSetExpiry     = "set_expiry"
	ActionSetOverride   = "set_override"
	ActionAddNote       = "add_note"
	ActionRegeneratePin = "regenerate_pin"
)

// Event is one device lifecycle event.
type Event struct {
	ID             string                 `bson:"_id,omitempty" json:"id,omitempty"`
	DeviceID       string                 `bson:"device_id" json:"device_id"`
	UID            string                 `bson:"uid,omitempty" json:"uid,omitempty"`
	Action         string                 `bson:"action" json:"action"`
	PreviousStatus string                 `bson:"previous_status,omitempty" json:"previous_status,omitempty"`
	NewStatus      string                 `bson:"new_status,omitempty" json:"new_status,omitempty"`
	ActorType      string                 `bson:"actor_type" json:"actor_type"` // "system" or "admin"
	ActorID        string                 `bson:"actor_id,omitempty" json:"actor_id,omitempty"`
	IPAddress      string                 `bson:"ip_address,omitempty" json:"ip_address,omitempty"`
	Details        map[string]interface{} `bson:"details,omitempty" json:"details,omitempty"`
	CreatedAt      time.Time              `bson:"created_at" json:"created_at"`
}

// Sink receives device events. Emit must never block the request path and
// must never fail it: implementations log and drop errors internally.
type Sink interface {
	Emit(event Event)
}
