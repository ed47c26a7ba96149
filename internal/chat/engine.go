// Package chat implements the login, book and cancel conversation that sits
// in front of the FindDoc services.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/finddoc-chatbot/internal/finddoc"
	"github.com/wolfman30/finddoc-chatbot/internal/notify"
	"github.com/wolfman30/finddoc-chatbot/pkg/logging"
)

const (
	msgReset            = "Conversation reset. Please start over by entering your email."
	msgSessionExpired   = "Your session has expired. Please start over by entering your email."
	msgAskPassword      = "Please provide your password."
	msgInvalidLogin     = "Invalid email or password. Please try again."
	msgLoginOK          = "Login successful! Do you want to cancel an appointment or book another one? (Type 'cancel' or 'book')"
	msgNoAppointments   = "You have no appointments to cancel."
	msgAppointmentList  = "Here are your appointments:\n%s\n \nPlease choose one to cancel by its index (e.g. 1)."
	msgInvalidSelection = "Invalid selection. Please try again."
	msgCancelled        = "Appointment successfully canceled."
	msgCancelFailed     = "Failed to cancel the appointment. Try again later."
	msgAskSymptoms      = "What symptoms are you experiencing?"
	msgAskInsurance     = "Which insurance do you have?"
	msgAskLocation      = "Please provide your location (street, city, state, zip)."
	msgNoProviders      = "No providers found for your criteria. Try again with different inputs."
	msgProviderList     = "Here are the top %d providers:\n%s\nPlease choose one by its index (e.g. 1)."
	msgSchedule         = "Available times for %s:\n%s\nPlease choose one by its index (e.g. 1)."
	msgNoSchedule       = "Unfortunately, no schedule could be found for %s. Please choose another provider by its index (e.g. 1)."
	msgAskReason        = "Please specify a reason for your appointment."
	msgBooked           = "Your appointment with %s is confirmed."
	msgBookFailed       = "Failed to book the appointment. Try again later."
	msgComplete         = "Thank you! Your process is complete."
)

const locationSeparator = ", "

// MaxBackendCallsPerMessage bounds the sequential backend round trips a
// single message can cost. Choosing "cancel" fetches the appointments and
// then looks up the provider of each listed one.
const MaxBackendCallsPerMessage = 1 + MaxAppointments

// Backend is the set of FindDoc calls the conversation makes.
type Backend interface {
	Login(ctx context.Context, email, password string) (string, error)
	SearchProviders(ctx context.Context, token string, req finddoc.SearchRequest) ([]finddoc.Provider, error)
	SearchProvider(ctx context.Context, token string, providerID finddoc.ID) (*finddoc.Provider, error)
	ProviderSchedule(ctx context.Context, token string, providerID finddoc.ID) (*finddoc.Schedule, error)
	FetchUserAppointments(ctx context.Context, token string) ([]finddoc.Appointment, error)
	CancelUserAppointment(ctx context.Context, token string, appointmentID finddoc.ID) (bool, error)
	BookAppointment(ctx context.Context, token string, req finddoc.BookingRequest) (bool, error)
}

// Notifier receives confirmations for completed bookings and cancellations.
type Notifier interface {
	NotifyConfirmation(ctx context.Context, c notify.Confirmation) error
}

// Observer records conversation metrics.
type Observer interface {
	ObserveMessage(step string)
	ObserveOutcome(flow, outcome string)
}

// Engine advances a conversation by one user message.
type Engine struct {
	backend  Backend
	notifier Notifier
	observer Observer
	logger   *logging.Logger
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier sends confirmation emails after successful bookings and cancellations.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithObserver records per-step and per-outcome metrics.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// NewEngine builds an engine over the given backend.
func NewEngine(backend Backend, logger *logging.Logger, opts ...Option) *Engine {
	if backend == nil {
		panic("chat: backend cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{backend: backend, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type stepHandler func(e *Engine, ctx context.Context, st *State, msg string) (*State, string)

var dispatch = map[Step]stepHandler{
	StepAwaitEmail:         (*Engine).awaitEmail,
	StepAwaitPassword:      (*Engine).awaitPassword,
	StepAwaitFlowChoice:    (*Engine).awaitFlowChoice,
	StepCancelSelect:       (*Engine).cancelSelect,
	StepBookSpecialty:      (*Engine).bookSpecialty,
	StepBookInsurance:      (*Engine).bookInsurance,
	StepBookLocation:       (*Engine).bookLocation,
	StepBookSelectProvider: (*Engine).bookSelectProvider,
	StepBookSelectSlot:     (*Engine).bookSelectSlot,
	StepBookReason:         (*Engine).bookReason,
	StepComplete:           (*Engine).complete,
}

// Advance interprets message against st and returns the next state and the
// reply. A nil returned state means the session must be cleared. st may be
// nil for a new conversation; it is mutated in place when the conversation
// moves forward.
func (e *Engine) Advance(ctx context.Context, st *State, message string) (*State, string) {
	if st == nil {
		st = &State{}
	}
	if e.observer != nil {
		e.observer.ObserveMessage(st.Step.String())
	}

	if isCommand(message, "reset") {
		return nil, msgReset
	}
	if st.Step > StepAwaitPassword && st.Token == "" {
		e.logger.Warn("chat: state past login without token, restarting", "step", st.Step.String())
		return nil, msgSessionExpired
	}
	if st.Step > StepAwaitPassword && st.TokenExpired(e.now()) {
		e.logger.Info("chat: bearer token expired, restarting", "step", st.Step.String())
		e.outcome(st.Flow, "token_expired")
		return nil, msgSessionExpired
	}

	handler, ok := dispatch[st.Step]
	if !ok {
		handler = (*Engine).complete
	}
	return handler(e, ctx, st, message)
}

func (e *Engine) awaitEmail(_ context.Context, st *State, msg string) (*State, string) {
	st.Email = strings.TrimSpace(msg)
	st.Step = StepAwaitPassword
	return st, msgAskPassword
}

func (e *Engine) awaitPassword(ctx context.Context, st *State, password string) (*State, string) {
	token, err := e.backend.Login(ctx, st.Email, password)
	if err != nil || token == "" {
		e.backendFailed("login", err, "email", logging.MaskEmail(st.Email))
		e.outcome(FlowNone, "login_failed")
		return nil, msgInvalidLogin
	}
	st.Token = token
	st.TokenExpiresAt = tokenExpiry(token)
	if st.TokenExpired(e.now()) {
		e.logger.Warn("chat: login returned an expired token", "email", logging.MaskEmail(st.Email))
		e.outcome(FlowNone, "token_expired")
		return nil, msgSessionExpired
	}
	st.Step = StepAwaitFlowChoice
	return st, msgLoginOK
}

func (e *Engine) awaitFlowChoice(ctx context.Context, st *State, msg string) (*State, string) {
	if isCommand(msg, "cancel") {
		return e.startCancel(ctx, st)
	}
	st.Flow = FlowBook
	st.Step = StepBookSpecialty
	return st, msgAskSymptoms
}

func (e *Engine) startCancel(ctx context.Context, st *State) (*State, string) {
	st.Flow = FlowCancel
	appointments, err := e.backend.FetchUserAppointments(ctx, st.Token)
	if err != nil {
		e.backendFailed("fetch_appointments", err)
	}
	if len(appointments) == 0 {
		e.outcome(FlowCancel, "no_appointments")
		return nil, msgNoAppointments
	}

	snapshot := append([]finddoc.Appointment(nil), capList(appointments, MaxAppointments)...)
	names := make([]string, len(snapshot))
	for i, apt := range snapshot {
		provider, err := e.backend.SearchProvider(ctx, st.Token, apt.ProviderID)
		if err != nil || provider == nil {
			e.backendFailed("search_provider", err, "provider_id", apt.ProviderID.String())
			continue
		}
		names[i] = provider.DisplayName()
	}

	st.Appointments = snapshot
	st.AppointmentProviders = names
	st.Step = StepCancelSelect
	return st, fmt.Sprintf(msgAppointmentList, FormatAppointments(snapshot, names))
}

func (e *Engine) cancelSelect(ctx context.Context, st *State, msg string) (*State, string) {
	idx, ok := parseIndex(msg, len(st.Appointments))
	if !ok {
		return st, msgInvalidSelection
	}
	selected := st.Appointments[idx]
	st.SelectedAppointment = &selected

	cancelled, err := e.backend.CancelUserAppointment(ctx, st.Token, selected.ID)
	if err != nil || !cancelled {
		e.backendFailed("cancel_appointment", err, "appointment_id", selected.ID.String())
		e.outcome(FlowCancel, "failed")
		return nil, msgCancelFailed
	}

	var providerName string
	if idx < len(st.AppointmentProviders) {
		providerName = st.AppointmentProviders[idx]
	}
	e.outcome(FlowCancel, "cancelled")
	e.confirm(ctx, notify.Confirmation{
		Kind:         notify.ConfirmationCancelled,
		Email:        st.Email,
		ProviderName: providerName,
		When:         FormatDatetime(selected.StartDatetime),
	})
	return nil, msgCancelled
}

func (e *Engine) bookSpecialty(_ context.Context, st *State, msg string) (*State, string) {
	st.Specialty = strings.TrimSpace(msg)
	st.Step = StepBookInsurance
	return st, msgAskInsurance
}

func (e *Engine) bookInsurance(_ context.Context, st *State, msg string) (*State, string) {
	st.Insurance = strings.TrimSpace(msg)
	st.Step = StepBookLocation
	return st, msgAskLocation
}

func (e *Engine) bookLocation(ctx context.Context, st *State, msg string) (*State, string) {
	loc, ok := parseLocation(msg)
	if !ok {
		return st, msgNoProviders
	}

	providers, err := e.backend.SearchProviders(ctx, st.Token, finddoc.SearchRequest{
		Specialty: st.Specialty,
		Insurance: st.Insurance,
		Street:    loc.Street,
		City:      loc.City,
		State:     loc.State,
		Zip:       loc.Zip,
	})
	if err != nil {
		e.backendFailed("search_providers", err)
	}
	if len(providers) == 0 {
		return st, msgNoProviders
	}

	st.Location = &loc
	st.Providers = append([]finddoc.Provider(nil), capList(providers, MaxProviders)...)
	st.Step = StepBookSelectProvider
	return st, fmt.Sprintf(msgProviderList, len(st.Providers), FormatProviders(st.Providers))
}

func (e *Engine) bookSelectProvider(ctx context.Context, st *State, msg string) (*State, string) {
	idx, ok := parseIndex(msg, len(st.Providers))
	if !ok {
		e.outcome(FlowBook, "invalid_provider")
		return nil, msgInvalidSelection
	}
	provider := st.Providers[idx]

	var open []finddoc.Slot
	schedule, err := e.backend.ProviderSchedule(ctx, st.Token, provider.ID)
	if err != nil {
		e.backendFailed("provider_schedule", err, "provider_id", provider.ID.String())
	} else if schedule != nil {
		open = OpenSlots(schedule.Availability)
	}
	if len(open) == 0 {
		// The provider stays unselected so the user can pick another one
		// from the same list.
		return st, fmt.Sprintf(msgNoSchedule, provider.DisplayName())
	}

	st.SelectedProvider = &provider
	st.Availability = open
	st.Step = StepBookSelectSlot
	return st, fmt.Sprintf(msgSchedule, provider.DisplayName(), FormatSchedule(open))
}

func (e *Engine) bookSelectSlot(_ context.Context, st *State, msg string) (*State, string) {
	idx, ok := parseIndex(msg, len(st.Availability))
	if !ok {
		return st, msgInvalidSelection
	}
	st.AppointmentDatetime = st.Availability[idx].StartDatetime
	st.Step = StepBookReason
	return st, msgAskReason
}

func (e *Engine) bookReason(ctx context.Context, st *State, msg string) (*State, string) {
	st.Reason = strings.TrimSpace(msg)
	provider := st.SelectedProvider
	if provider == nil {
		e.logger.Warn("chat: reason step reached without a provider")
		e.outcome(FlowBook, "failed")
		return nil, msgBookFailed
	}

	booked, err := e.backend.BookAppointment(ctx, st.Token, finddoc.BookingRequest{
		ProviderID:        provider.ID,
		ProviderFirstName: provider.FirstName,
		ProviderLastName:  provider.LastName,
		StartDatetime:     st.AppointmentDatetime,
		Reason:            st.Reason,
	})
	if err != nil || !booked {
		e.backendFailed("book_appointment", err, "provider_id", provider.ID.String())
		e.outcome(FlowBook, "failed")
		return nil, msgBookFailed
	}

	e.outcome(FlowBook, "booked")
	e.confirm(ctx, notify.Confirmation{
		Kind:         notify.ConfirmationBooked,
		Email:        st.Email,
		ProviderName: provider.DisplayName(),
		When:         FormatDatetime(st.AppointmentDatetime),
		Reason:       st.Reason,
	})
	return nil, fmt.Sprintf(msgBooked, provider.DisplayName())
}

func (e *Engine) complete(_ context.Context, st *State, _ string) (*State, string) {
	e.outcome(st.Flow, "complete")
	return nil, msgComplete
}

func (e *Engine) confirm(ctx context.Context, c notify.Confirmation) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.NotifyConfirmation(ctx, c); err != nil {
		e.logger.Warn("chat: confirmation email failed", "kind", c.Kind, "error", err)
	}
}

func (e *Engine) outcome(flow Flow, outcome string) {
	if e.observer != nil {
		e.observer.ObserveOutcome(flow.String(), outcome)
	}
}

// backendFailed logs why a backend call produced nothing. The user only
// ever sees the collapsed "not found"/"failed" text.
func (e *Engine) backendFailed(operation string, err error, args ...any) {
	attrs := append([]any{"operation", operation, "kind", errorKind(err)}, args...)
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	e.logger.Warn("chat: backend call returned nothing", attrs...)
}

func errorKind(err error) string {
	var apiErr *finddoc.APIError
	switch {
	case err == nil:
		return "empty"
	case errors.As(err, &apiErr):
		return "http_" + strconv.Itoa(apiErr.StatusCode)
	case errors.Is(err, finddoc.ErrNoToken):
		return "no_token"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "transport"
	}
}

func isCommand(msg, command string) bool {
	return strings.EqualFold(strings.TrimSpace(msg), command)
}

// parseIndex converts a 1-based user choice into a 0-based index into a
// list of length n.
func parseIndex(msg string, n int) (int, bool) {
	choice, err := strconv.Atoi(strings.TrimSpace(msg))
	if err != nil || choice < 1 || choice > n {
		return 0, false
	}
	return choice - 1, true
}

// parseLocation splits "street, city, state, zip" into exactly four parts.
func parseLocation(msg string) (Location, bool) {
	parts := strings.Split(strings.TrimSpace(msg), locationSeparator)
	if len(parts) != 4 {
		return Location{}, false
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] == "" {
			return Location{}, false
		}
	}
	return Location{Street: parts[0], City: parts[1], State: parts[2], Zip: parts[3]}, true
}
