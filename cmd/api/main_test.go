package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/wolfman30/finddoc-chatbot/internal/chat"
	appconfig "github.com/wolfman30/finddoc-chatbot/internal/config"
	"github.com/wolfman30/finddoc-chatbot/internal/finddoc"
	"github.com/wolfman30/finddoc-chatbot/pkg/logging"
)

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		Port:               "0",
		UserServiceURL:     "http://127.0.0.1:1",
		ProviderServiceURL: "http://127.0.0.1:1/providers",
		BackendTimeout:     time.Second,
		SearchRadius:       10,
		SessionStore:       "memory",
		SessionTTL:         time.Minute,
		SessionCookieName:  "finddoc_session",
		CORSAllowedOrigins: []string{"*"},
		MetricsEnabled:     true,
		EmailProvider:      "none",
	}
}

func TestSetupMetricsExposesChatMetrics(t *testing.T) {
	handler, chatMetrics := setupMetrics()
	if handler == nil || chatMetrics == nil {
		t.Fatalf("expected non-nil handler and metrics")
	}

	chatMetrics.ObserveMessage("await_email")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "finddoc_chat_messages_total") {
		t.Fatalf("expected chat message counter to be exported")
	}
}

func TestBuildServerServesChat(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, cleanup, err := buildServer(ctx, testConfig(), logging.New("error"))
	if err != nil {
		t.Fatalf("buildServer: %v", err)
	}
	defer cleanup()

	req := httptest.NewRequest(http.MethodPost, "/chatbot/chat", strings.NewReader(`{"message":"jane@example.com"}`))
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Please provide your password.") {
		t.Fatalf("unexpected reply %s", rr.Body.String())
	}
	if rr.Header().Get("X-Session-ID") == "" {
		t.Fatalf("expected a session id header")
	}
}

func TestBuildServerMetricsToggle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig()
	cfg.MetricsEnabled = false
	srv, cleanup, err := buildServer(ctx, cfg, logging.New("error"))
	if err != nil {
		t.Fatalf("buildServer: %v", err)
	}
	defer cleanup()

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected /metrics to be absent, got %d", rr.Code)
	}
}

func TestBuildServerRedisSessions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.SessionStore = "redis"
	cfg.RedisAddr = mr.Addr()

	srv, cleanup, err := buildServer(ctx, cfg, logging.New("error"))
	if err != nil {
		t.Fatalf("buildServer: %v", err)
	}
	defer cleanup()

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"jane@example.com"}`))
	req.Header.Set("X-Session-ID", "redis-session")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	if !mr.Exists("chat_session:redis-session") {
		t.Fatalf("expected session to be stored in redis")
	}
}

func TestBuildServerRejectsUnavailableRedis(t *testing.T) {
	cfg := testConfig()
	cfg.SessionStore = "redis"
	if _, _, err := buildServer(context.Background(), cfg, logging.New("error")); err == nil {
		t.Fatalf("expected an error when redis is not configured")
	}
}

func TestWriteTimeoutCoversCancelListing(t *testing.T) {
	for _, backend := range []time.Duration{time.Second, 15 * time.Second} {
		worst := backend * time.Duration(chat.MaxBackendCallsPerMessage)
		if got := writeTimeout(backend); got <= worst {
			t.Fatalf("writeTimeout(%s) = %s, want more than %s", backend, got, worst)
		}
	}

	srv, cleanup, err := buildServer(context.Background(), testConfig(), logging.New("error"))
	if err != nil {
		t.Fatalf("buildServer: %v", err)
	}
	defer cleanup()
	if srv.WriteTimeout != writeTimeout(time.Second) {
		t.Fatalf("expected server write timeout %s, got %s", writeTimeout(time.Second), srv.WriteTimeout)
	}
}

// slowFindDoc serves ten appointments and answers every provider lookup
// after delay.
func slowFindDoc(t *testing.T, delay time.Duration) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok"})
	})
	mux.HandleFunc("/users/", func(w http.ResponseWriter, r *http.Request) {
		var apts []finddoc.Appointment
		for i := 1; i <= chat.MaxAppointments; i++ {
			apts = append(apts, finddoc.Appointment{
				ID:            finddoc.ID(fmt.Sprintf("a%d", i)),
				ProviderID:    finddoc.ID(fmt.Sprintf("p%d", i)),
				StartDatetime: "2024-12-01T10:00:00",
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"appointments": apts})
	})
	mux.HandleFunc("/providers/search-provider", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delay)
		_ = json.NewEncoder(w).Encode(finddoc.Provider{
			ID:        finddoc.ID(r.URL.Query().Get("id")),
			FirstName: "Greg",
			LastName:  "House",
		})
	})
	backend := httptest.NewServer(mux)
	t.Cleanup(backend.Close)
	return backend
}

func TestSlowCancelListingIsDelivered(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := slowFindDoc(t, 150*time.Millisecond)
	cfg := testConfig()
	cfg.UserServiceURL = backend.URL
	cfg.ProviderServiceURL = backend.URL + "/providers"
	cfg.BackendTimeout = 200 * time.Millisecond

	srv, cleanup, err := buildServer(ctx, cfg, logging.New("error"))
	if err != nil {
		t.Fatalf("buildServer: %v", err)
	}
	defer cleanup()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	send := func(msg string) (int, string) {
		t.Helper()
		body := fmt.Sprintf(`{"message":%q}`, msg)
		req, _ := http.NewRequest(http.MethodPost, "http://"+ln.Addr().String()+"/chat", strings.NewReader(body))
		req.Header.Set("X-Session-ID", "slow-cancel")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("send %q: %v", msg, err)
		}
		defer resp.Body.Close()
		var out struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&out)
		return resp.StatusCode, out.Message
	}

	send("jane@example.com")
	send("secret")
	status, reply := send("cancel")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if !strings.HasPrefix(reply, "Here are your appointments:") || !strings.Contains(reply, "10. Provider: Greg House") {
		t.Fatalf("expected the full appointment list, got %q", reply)
	}
}
