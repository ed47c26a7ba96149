package webchat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/finddoc-chatbot/internal/chat"
	"github.com/wolfman30/finddoc-chatbot/internal/finddoc"
	"github.com/wolfman30/finddoc-chatbot/internal/session"
	"github.com/wolfman30/finddoc-chatbot/pkg/logging"
)

const (
	// SessionHeader carries the session ID on requests and responses.
	SessionHeader = "X-Session-ID"

	defaultCookieName = "finddoc_session"
	defaultSessionTTL = 30 * time.Minute
	maxBodyBytes      = 64 << 10

	msgEmptyMessage  = "Please send a message to start the conversation."
	msgInternalError = "Something went wrong on our side. Please try again later."
	msgLoginRequired = "Email and password are required."
	msgLoginFailed   = "Login failed."
)

// Engine advances a conversation by one message.
type Engine interface {
	Advance(ctx context.Context, st *chat.State, message string) (*chat.State, string)
}

// Authenticator performs the backend login for the /auth/login proxy.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (string, error)
}

// SessionObserver counts session store failures.
type SessionObserver interface {
	ObserveSessionError(operation string)
}

// Options configure a Handler.
type Options struct {
	Engine       Engine
	Sessions     session.Store
	Auth         Authenticator
	SessionTTL   time.Duration
	CookieName   string
	CookieSecure bool
	Observer     SessionObserver
	Logger       *logging.Logger
}

// Handler serves the chat endpoints over HTTP and websocket.
type Handler struct {
	engine       Engine
	sessions     session.Store
	auth         Authenticator
	ttl          time.Duration
	cookieName   string
	cookieSecure bool
	observer     SessionObserver
	logger       *logging.Logger
	now          func() time.Time
}

// ChatRequest is the body of POST /chat and every inbound websocket frame.
type ChatRequest struct {
	Message *string `json:"message"`
}

// ChatResponse is the reply to POST /chat and every outbound websocket frame.
type ChatResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// NewHandler creates a chat handler.
func NewHandler(opts Options) *Handler {
	if opts.Engine == nil {
		panic("webchat: engine cannot be nil")
	}
	if opts.Sessions == nil {
		panic("webchat: session store cannot be nil")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}
	if opts.CookieName == "" {
		opts.CookieName = defaultCookieName
	}
	return &Handler{
		engine:       opts.Engine,
		sessions:     opts.Sessions,
		auth:         opts.Auth,
		ttl:          opts.SessionTTL,
		cookieName:   opts.CookieName,
		cookieSecure: opts.CookieSecure,
		observer:     opts.Observer,
		logger:       opts.Logger,
		now:          time.Now,
	}
}

// HandleHome reports that the service is up.
func (h *Handler) HandleHome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Chatbot is running!"))
}

// HandleHealth is the load balancer probe.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleChat processes one message for the caller's session.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	sessionID := h.resolveSession(w, r)

	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || req.Message == nil {
		writeJSON(w, http.StatusOK, ChatResponse{Message: msgEmptyMessage})
		return
	}

	reply, err := h.process(r.Context(), sessionID, *req.Message)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ChatResponse{Message: msgInternalError})
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Message: reply})
}

// HandleLogin proxies a login to the user service and relays its answer.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil ||
		strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msgLoginRequired})
		return
	}
	if h.auth == nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msgLoginFailed})
		return
	}

	token, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]string{"token": token})
		return
	}

	var apiErr *finddoc.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message()
		if msg == "" {
			msg = msgLoginFailed
		}
		h.logger.Info("webchat: login rejected", "status", apiErr.StatusCode, "email", logging.MaskEmail(req.Email))
		writeJSON(w, apiErr.StatusCode, map[string]string{"error": msg})
		return
	}
	h.logger.Error("webchat: login proxy failed", "error", err, "email", logging.MaskEmail(req.Email))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msgLoginFailed})
}

// HandleWebSocket runs the same conversation over a websocket. Each inbound
// {"message"} frame gets exactly one outbound {"message"} frame.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = h.existingSession(r)
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(r.Context(), conn, sessionID)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(ctx context.Context, conn *websocket.Conn, sessionID string) {
	// Clear the server's read/write deadlines inherited from the upgrade request.
	_ = conn.SetDeadline(time.Time{})
	logger := h.logger.With("session_id", sessionID)
	logger.Info("webchat: websocket opened")
	for {
		var frame ChatRequest
		if err := websocket.JSON.Receive(conn, &frame); err != nil {
			logger.Debug("webchat: websocket closed", "error", err)
			return
		}

		out := ChatResponse{SessionID: sessionID}
		if frame.Message == nil {
			out.Message = msgEmptyMessage
		} else if reply, err := h.process(ctx, sessionID, *frame.Message); err != nil {
			out.Message = msgInternalError
		} else {
			out.Message = reply
		}
		if err := websocket.JSON.Send(conn, out); err != nil {
			logger.Debug("webchat: websocket send failed", "error", err)
			return
		}
	}
}

// process loads the session, advances the conversation and persists the
// result. Only load and save failures are fatal; a failed delete leaves the
// entry to expire on its own.
func (h *Handler) process(ctx context.Context, sessionID, message string) (string, error) {
	st, err := h.sessions.Load(ctx, sessionID)
	if err != nil {
		h.sessionFailed("load", sessionID, err)
		return "", err
	}

	next, reply := h.engine.Advance(ctx, st, message)

	if next == nil {
		if st != nil {
			if err := h.sessions.Delete(ctx, sessionID); err != nil {
				h.sessionFailed("delete", sessionID, err)
			}
		}
		return reply, nil
	}
	if err := h.sessions.Save(ctx, sessionID, next, next.TTL(h.ttl, h.now())); err != nil {
		h.sessionFailed("save", sessionID, err)
		return "", err
	}
	return reply, nil
}

func (h *Handler) sessionFailed(operation, sessionID string, err error) {
	if h.observer != nil {
		h.observer.ObserveSessionError(operation)
	}
	h.logger.Error("webchat: session store failure", "operation", operation, "session_id", sessionID, "error", err)
}

// resolveSession returns the caller's session ID, minting one and setting
// the cookie when the request carries none.
func (h *Handler) resolveSession(w http.ResponseWriter, r *http.Request) string {
	sessionID := h.existingSession(r)
	if sessionID == "" {
		sessionID = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     h.cookieName,
			Value:    sessionID,
			Path:     "/",
			MaxAge:   int(h.ttl / time.Second),
			HttpOnly: true,
			Secure:   h.cookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	w.Header().Set(SessionHeader, sessionID)
	return sessionID
}

func (h *Handler) existingSession(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(SessionHeader)); id != "" {
		return id
	}
	if c, err := r.Cookie(h.cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
