package chat

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/finddoc-chatbot/internal/finddoc"
)

// Step is the conversation's position in the login/book/cancel flow.
type Step int

const (
	StepAwaitEmail Step = iota
	StepAwaitPassword
	StepAwaitFlowChoice
	StepCancelSelect
	StepBookSpecialty
	StepBookInsurance
	StepBookLocation
	StepBookSelectProvider
	StepBookSelectSlot
	StepBookReason
	StepComplete
)

var stepNames = map[Step]string{
	StepAwaitEmail:         "await_email",
	StepAwaitPassword:      "await_password",
	StepAwaitFlowChoice:    "await_flow_choice",
	StepCancelSelect:       "cancel_select",
	StepBookSpecialty:      "book_specialty",
	StepBookInsurance:      "book_insurance",
	StepBookLocation:       "book_location",
	StepBookSelectProvider: "book_select_provider",
	StepBookSelectSlot:     "book_select_slot",
	StepBookReason:         "book_reason",
	StepComplete:           "complete",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return "unknown"
}

// Flow is chosen once after login and never changes.
type Flow int

const (
	FlowNone Flow = iota
	FlowBook
	FlowCancel
)

func (f Flow) String() string {
	switch f {
	case FlowBook:
		return "book"
	case FlowCancel:
		return "cancel"
	default:
		return "none"
	}
}

// Location is the user's address split from "street, city, state, zip".
type Location struct {
	Street string `json:"street"`
	City   string `json:"city"`
	State  string `json:"state"`
	Zip    string `json:"zip"`
}

// State is one session's conversation. A nil *State is an empty conversation.
// The password is never stored: it is consumed by the login call in the same
// turn it arrives.
type State struct {
	Step           Step      `json:"step"`
	Flow           Flow      `json:"flow"`
	Email          string    `json:"email,omitempty"`
	Token          string    `json:"token,omitempty"`
	TokenExpiresAt time.Time `json:"token_expires_at,omitempty"`

	Specialty           string             `json:"specialty,omitempty"`
	Insurance           string             `json:"insurance,omitempty"`
	Location            *Location          `json:"location,omitempty"`
	Providers           []finddoc.Provider `json:"providers,omitempty"`
	SelectedProvider    *finddoc.Provider  `json:"selected_provider,omitempty"`
	Availability        []finddoc.Slot     `json:"availability,omitempty"`
	AppointmentDatetime string             `json:"appointment_datetime,omitempty"`
	Reason              string             `json:"reason,omitempty"`

	Appointments         []finddoc.Appointment `json:"appointments,omitempty"`
	AppointmentProviders []string              `json:"appointment_providers,omitempty"` // parallel to Appointments, "" when the lookup failed
	SelectedAppointment  *finddoc.Appointment  `json:"selected_appointment,omitempty"`
}

// StepOf reports the step of st, treating nil as a fresh conversation.
func StepOf(st *State) Step {
	if st == nil {
		return StepAwaitEmail
	}
	return st.Step
}

// TokenExpired reports whether the bearer token's exp claim has passed.
// Tokens without an exp claim never expire here.
func (s *State) TokenExpired(now time.Time) bool {
	return s != nil && !s.TokenExpiresAt.IsZero() && !s.TokenExpiresAt.After(now)
}

// TTL caps base at the remaining lifetime of the bearer token when the token
// is a JWT with an exp claim. It never returns less than a second.
func (s *State) TTL(base time.Duration, now time.Time) time.Duration {
	if s == nil || s.TokenExpiresAt.IsZero() {
		return base
	}
	remaining := s.TokenExpiresAt.Sub(now)
	if remaining < base {
		base = remaining
	}
	if base < time.Second {
		return time.Second
	}
	return base
}

// tokenExpiry reads the exp claim of a JWT bearer token without verifying
// it. Opaque tokens yield the zero time.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
