// Package control serves the autobot's HTTP control plane: health, the
// latest loop status, Prometheus metrics, the WebSocket event stream, the
// audit journal, and a TOTP-authenticated remote stop.
package control

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"trading-autobot/internal/store/sqlite"

	"github.com/pquerna/otp/totp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// JournalReader lists audited events.
type JournalReader interface {
	Events(ctx context.Context, kind string, limit int) ([]sqlite.Record, error)
}

// Options wires the control plane to the running loop. Nil handlers leave
// their route unregistered.
type Options struct {
	Health   http.Handler
	Status   func() any
	Gatherer prometheus.Gatherer
	Stream   http.Handler
	Journal  JournalReader

	// Stop cancels the loop cooperatively. Remote stop is disabled when
	// TOTPSecret is empty.
	Stop       func(reason string)
	TOTPSecret string
}

type stopRequest struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// NewRouter sets up the control routes.
func NewRouter(opts Options) *http.ServeMux {
	mux := http.NewServeMux()

	if opts.Health != nil {
		mux.Handle("/api/v1/health", opts.Health)
	} else {
		mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		})
	}

	if opts.Status != nil {
		mux.HandleFunc("/api/v1/status", func(w http.ResponseWriter, r *http.Request) {
			setCORS(w)
			writeJSON(w, http.StatusOK, opts.Status())
		})
	}

	if opts.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	if opts.Stream != nil {
		mux.Handle("/ws", opts.Stream)
	}

	if opts.Journal != nil {
		mux.HandleFunc("/api/v1/journal", func(w http.ResponseWriter, r *http.Request) {
			setCORS(w)
			limit := 100
			if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 1000 {
				limit = l
			}
			recs, err := opts.Journal.Events(r.Context(), r.URL.Query().Get("kind"), limit)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, recs)
		})
	}

	mux.HandleFunc("/api/v1/stop", func(w http.ResponseWriter, r *http.Request) {
		handleStop(w, r, opts)
	})

	return mux
}

func handleStop(w http.ResponseWriter, r *http.Request, opts Options) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST required"})
		return
	}
	if opts.TOTPSecret == "" || opts.Stop == nil {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "remote stop disabled"})
		return
	}

	var req stopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if !totp.Validate(strings.TrimSpace(req.Code), opts.TOTPSecret) {
		log.Printf("[control] stop rejected: invalid code from %s", r.RemoteAddr)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid code"})
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "remote stop"
	}
	log.Printf("[control] stop accepted from %s: %s", r.RemoteAddr, reason)
	opts.Stop(reason)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
}

// Server runs the control plane HTTP server.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a control server on addr.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[control] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[control] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
