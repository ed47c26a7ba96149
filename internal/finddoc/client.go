package finddoc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/finddoc-chatbot/pkg/logging"
)

const (
	defaultTimeout = 15 * time.Second
	defaultRadius  = 10
	maxErrorBody   = 300
)

// ErrNoToken is returned when login succeeds at the HTTP level but the
// response carries no token.
var ErrNoToken = errors.New("finddoc: login response missing token")

// APIError is returned for any non-2xx response from the FindDoc services.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string // truncated to maxErrorBody bytes
	Detail     string // "error" field of the full JSON body, if any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("finddoc: %s returned %d", e.Operation, e.StatusCode)
}

// Message returns the "error" field of a JSON error body when present.
func (e *APIError) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	return errorField([]byte(e.Body))
}

func errorField(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		return payload.Error
	}
	return ""
}

// truncateBody cuts body to at most limit bytes without splitting a rune.
func truncateBody(body []byte, limit int) string {
	if len(body) <= limit {
		return string(body)
	}
	n := limit
	for n > 0 && !utf8.RuneStart(body[n]) {
		n--
	}
	return string(body[:n])
}

// CallObserver receives one observation per backend round trip.
type CallObserver interface {
	ObserveBackendCall(operation, outcome string, seconds float64)
}

// Options configure a Client.
type Options struct {
	UserServiceURL     string
	ProviderServiceURL string
	Timeout            time.Duration
	SearchRadius       int
	HTTPClient         *http.Client
	Observer           CallObserver
	Tracer             trace.Tracer
	Logger             *logging.Logger
}

// Client talks to the FindDoc user service (auth, users, schedules) and the
// provider service (search).
type Client struct {
	httpClient  *http.Client
	userURL     string
	providerURL string
	radius      int
	observer    CallObserver
	tracer      trace.Tracer
	logger      *logging.Logger
}

// NewClient constructs a FindDoc client.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.SearchRadius <= 0 {
		opts.SearchRadius = defaultRadius
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("finddoc.internal.finddoc")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	return &Client{
		httpClient:  opts.HTTPClient,
		userURL:     strings.TrimRight(opts.UserServiceURL, "/"),
		providerURL: strings.TrimRight(opts.ProviderServiceURL, "/"),
		radius:      opts.SearchRadius,
		observer:    opts.Observer,
		tracer:      opts.Tracer,
		logger:      opts.Logger,
	}
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp loginResponse
	err := c.doJSON(ctx, "login", http.MethodPost, c.userURL+"/auth/login", "", loginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Token) == "" {
		return "", ErrNoToken
	}
	return resp.Token, nil
}

// SearchProviders finds providers matching the request. A zero Radius uses
// the client's configured radius.
func (c *Client) SearchProviders(ctx context.Context, token string, req SearchRequest) ([]Provider, error) {
	if req.Radius <= 0 {
		req.Radius = c.radius
	}
	var providers []Provider
	if err := c.doJSON(ctx, "search_providers", http.MethodPost, c.providerURL+"/search", token, req, &providers); err != nil {
		return nil, err
	}
	return providers, nil
}

// SearchProvider looks up a single provider by ID.
func (c *Client) SearchProvider(ctx context.Context, token string, providerID ID) (*Provider, error) {
	endpoint := c.providerURL + "/search-provider?id=" + url.QueryEscape(providerID.String())
	var provider Provider
	if err := c.doJSON(ctx, "search_provider", http.MethodGet, endpoint, token, nil, &provider); err != nil {
		return nil, err
	}
	return &provider, nil
}

// ProviderSchedule returns the provider's schedule.
func (c *Client) ProviderSchedule(ctx context.Context, token string, providerID ID) (*Schedule, error) {
	endpoint := c.userURL + "/provider_schedules/" + url.PathEscape(providerID.String())
	var schedule Schedule
	if err := c.doJSON(ctx, "provider_schedule", http.MethodGet, endpoint, token, nil, &schedule); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// FetchUserAppointments returns the logged-in user's appointments.
func (c *Client) FetchUserAppointments(ctx context.Context, token string) ([]Appointment, error) {
	var user userResponse
	if err := c.doJSON(ctx, "fetch_appointments", http.MethodGet, c.userURL+"/users/", token, nil, &user); err != nil {
		return nil, err
	}
	return user.Appointments, nil
}

// CancelUserAppointment deletes one of the user's appointments.
func (c *Client) CancelUserAppointment(ctx context.Context, token string, appointmentID ID) (bool, error) {
	endpoint := c.userURL + "/users/appointment/" + url.PathEscape(appointmentID.String())
	if err := c.doJSON(ctx, "cancel_appointment", http.MethodDelete, endpoint, token, nil, nil); err != nil {
		return false, err
	}
	return true, nil
}

// BookAppointment creates an appointment for the logged-in user.
func (c *Client) BookAppointment(ctx context.Context, token string, req BookingRequest) (bool, error) {
	if err := c.doJSON(ctx, "book_appointment", http.MethodPost, c.userURL+"/users/appointment", token, req, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) doJSON(ctx context.Context, operation, method, endpoint, token string, body interface{}, out interface{}) (err error) {
	ctx, span := c.tracer.Start(ctx, "finddoc."+operation)
	defer span.End()
	span.SetAttributes(attribute.String("http.method", method))

	start := time.Now()
	outcome := "ok"
	defer func() {
		if err != nil {
			span.RecordError(err)
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				outcome = "http_error"
			} else {
				outcome = "transport_error"
			}
		}
		if c.observer != nil {
			c.observer.ObserveBackendCall(operation, outcome, time.Since(start).Seconds())
		}
	}()

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("finddoc: marshal %s request: %w", operation, err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("finddoc: build %s request: %w", operation, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("finddoc: %s request: %w", operation, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("finddoc: read %s response: %w", operation, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("finddoc API non-2xx response", "operation", operation, "status", resp.StatusCode)
		return &APIError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Body:       truncateBody(respBody, maxErrorBody),
			Detail:     errorField(respBody),
		}
	}

	if len(respBody) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("finddoc: decode %s response: %w", operation, err)
	}
	return nil
}
