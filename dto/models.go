package dto

import (
	"net/http"
	"time"
)

type NetClientType string

const NET_DEFAULT_CLIENT_REF = "net.client.default"

type NetClient struct {
	Name        string        `json:"name" yaml:"name"`
	Ref         string        `json:"ref" yaml:"ref"`
	ClientType  NetClientType `json:"client_type" yaml:"client_type"`
	Description string        `json:"description" yaml:"description"`
}

type Response struct {
	StatusCode int
	Headers    http.Header
	// As well as casting to ResponseObject if set, return as byes
	Body []byte
}

// LoginRequest carries the credential issuance payload.
// Role is one of USER, BAKERY or ADMIN on the reference API.
type LoginRequest struct {
	Identifier string `json:"identifier" yaml:"identifier"`
	Secret     string `json:"secret" yaml:"secret"`
	Role       string `json:"role" yaml:"role"`
}

// Profile is the current-session profile returned by the API.
type Profile struct {
	UserID string `json:"userId" yaml:"user_id"`
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`
	Phone  string `json:"phone,omitempty" yaml:"phone,omitempty"`
	Role   string `json:"role,omitempty" yaml:"role,omitempty"`
}

type SessionSnapshot struct {
	State     SessionState `json:"state" yaml:"state"`
	SubjectID string       `json:"subject_id,omitempty" yaml:"subject_id,omitempty"`
	Role      string       `json:"role,omitempty" yaml:"role,omitempty"`
	ExpiresAt time.Time    `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	Profile   *Profile     `json:"profile,omitempty" yaml:"profile,omitempty"`
	// SchedulerState is the refresh scheduler state at the time of the snapshot
	SchedulerState string `json:"scheduler_state" yaml:"scheduler_state"`
}

type SessionNotification struct {
	Kind      NotificationKind `json:"kind" yaml:"kind"`
	State     SessionState     `json:"state" yaml:"state"`
	SubjectID string           `json:"subject_id,omitempty" yaml:"subject_id,omitempty"`
	Message   string           `json:"message,omitempty" yaml:"message,omitempty"`
}
