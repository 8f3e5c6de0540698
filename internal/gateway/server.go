// Package gateway exposes the sauticore pipeline over HTTP for the UI
// layer. JSON in, JSON out; rendering and input polish stay client-side.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sautisahihi/sauticore/internal/chat"
	"github.com/sautisahihi/sauticore/internal/civic"
	"github.com/sautisahihi/sauticore/internal/connectivity"
	. "github.com/sautisahihi/sauticore/internal/logging"
	"github.com/sautisahihi/sauticore/internal/pipeline"
	"github.com/sautisahihi/sauticore/internal/prefs"
	"github.com/sautisahihi/sauticore/internal/provider"
)

// ServerConfig holds gateway configuration.
type ServerConfig struct {
	Port        int
	ChatBackend provider.Provider // text driver for assistant sessions
	ChatStore   chat.Store        // optional transcript persistence
	TokenBudget int
}

// Server is the HTTP surface over the pipeline.
type Server struct {
	server       *http.Server
	cfg          ServerConfig
	svc          *civic.Service
	orchestrator *pipeline.Orchestrator
	gate         *connectivity.Gate
	prefs        *prefs.Store
	hub          *hub

	done        chan struct{}
	watcherDone chan struct{}

	mu       sync.Mutex
	sessions map[string]*chat.Session
}

// NewServer wires the gateway. Start must be called to begin serving.
func NewServer(cfg ServerConfig, svc *civic.Service, o *pipeline.Orchestrator, gate *connectivity.Gate, prefStore *prefs.Store) *Server {
	s := &Server{
		cfg:          cfg,
		svc:          svc,
		orchestrator: o,
		gate:         gate,
		prefs:        prefStore,
		hub:          newHub(),
		done:         make(chan struct{}),
		watcherDone:  make(chan struct{}),
		sessions:     make(map[string]*chat.Session),
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go s.watchConnectivity()
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	wrap := func(h http.HandlerFunc) http.HandlerFunc {
		return s.logRequest(h)
	}

	mux.HandleFunc("/api/resolve", wrap(s.handleResolve))
	mux.HandleFunc("/api/chat", wrap(s.handleChat))
	mux.HandleFunc("/api/status", wrap(s.handleStatus))
	mux.HandleFunc("/api/prefs", wrap(s.handlePrefs))
	mux.HandleFunc("/api/prefs/vote", wrap(s.handleVote))
	mux.HandleFunc("/api/events", s.handleEvents)

	return mux
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	L_info("gateway: listening", "addr", s.server.Addr)
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains connections, stops the connectivity watcher and closes
// the event hub.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.done)
	<-s.watcherDone
	s.hub.close()
	return s.server.Shutdown(ctx)
}

func (s *Server) watchConnectivity() {
	defer close(s.watcherDone)
	ch := s.gate.Subscribe()
	for {
		select {
		case <-s.done:
			return
		case online, ok := <-ch:
			if !ok {
				return
			}
			s.hub.broadcast(event{Type: "connectivity", Online: &online})
		}
	}
}

// session returns the chat session for a key, creating it on first use.
func (s *Server) session(ctx context.Context, key string, lang provider.Language) (*chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[key]; ok {
		return existing, nil
	}

	sess, err := chat.NewSession(ctx, key, lang, s.cfg.ChatBackend, s.gate, chat.Options{
		TokenBudget: s.cfg.TokenBudget,
		Store:       s.cfg.ChatStore,
	})
	if err != nil {
		return nil, err
	}
	s.sessions[key] = sess
	return sess, nil
}

func (s *Server) logRequest(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next(w, r)
		L_debug("gateway: request", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start).Round(time.Millisecond))
	}
}
