package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/caffeineduck/goys/internal/metrics"
	"github.com/caffeineduck/goys/libys"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for compiling YAMLScript",
	Long: `Start an HTTP server that provides REST endpoints for compilation.

Endpoints:
  POST   /compile                Compile in a fresh isolate
  POST   /sessions               Create session, returns {"session_id":"..."}
  POST   /sessions/{id}/compile  Compile in the session's isolate
  DELETE /sessions/{id}          Close session
  GET    /health                 Health check
  GET    /metrics                Prometheus metrics`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().Duration("session-ttl", 15*time.Minute, "Close sessions idle for longer than this")
	serveCmd.Flags().Int64("max-input", 1024*1024, "Max request body size")
	rootCmd.AddCommand(serveCmd)
}

type sessionManager struct {
	sessions map[string]*serverSession
	mu       sync.RWMutex
	ttl      time.Duration
	log      *zap.Logger
	metrics  *metrics.Collector
	stop     chan struct{}
	stopOnce sync.Once
}

type serverSession struct {
	session  *libys.Session
	lastUsed time.Time
}

func newSessionManager(ttl time.Duration, log *zap.Logger, m *metrics.Collector) *sessionManager {
	sm := &sessionManager{
		sessions: make(map[string]*serverSession),
		ttl:      ttl,
		log:      log,
		metrics:  m,
		stop:     make(chan struct{}),
	}
	go sm.cleanup()
	return sm
}

func (sm *sessionManager) create(lctx *libys.Context, opts ...libys.SessionOption) (string, error) {
	session, err := lctx.NewSession(opts...)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	sm.mu.Lock()
	sm.sessions[id] = &serverSession{
		session:  session,
		lastUsed: time.Now(),
	}
	sm.mu.Unlock()

	sm.metrics.SessionOpened()
	sm.log.Info("session created", zap.String("session", id), zap.String("library", session.Path()))
	return id, nil
}

func (sm *sessionManager) get(id string) (*libys.Session, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ss, ok := sm.sessions[id]
	if !ok {
		return nil, false
	}
	ss.lastUsed = time.Now()
	return ss.session, true
}

func (sm *sessionManager) close(id string) bool {
	sm.mu.Lock()
	ss, ok := sm.sessions[id]
	if ok {
		delete(sm.sessions, id)
	}
	sm.mu.Unlock()

	if ok {
		sm.closeSession(id, ss.session, "closed")
	}
	return ok
}

func (sm *sessionManager) closeSession(id string, s *libys.Session, reason string) {
	if err := s.Close(); err != nil {
		sm.log.Warn("session close failed", zap.String("session", id), zap.Error(err))
	}
	sm.metrics.SessionClosed()
	sm.log.Info("session "+reason, zap.String("session", id))
}

func (sm *sessionManager) cleanup() {
	interval := time.Minute
	if sm.ttl < 2*interval {
		interval = sm.ttl / 2
	}
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-sm.stop:
			return
		case now := <-ticker.C:
			sm.expire(now)
		}
	}
}

// expire closes sessions idle since before now minus the TTL.
func (sm *sessionManager) expire(now time.Time) int {
	expired := make(map[string]*libys.Session)

	sm.mu.Lock()
	for id, ss := range sm.sessions {
		if now.Sub(ss.lastUsed) > sm.ttl {
			expired[id] = ss.session
			delete(sm.sessions, id)
		}
	}
	sm.mu.Unlock()

	for id, s := range expired {
		sm.closeSession(id, s, "expired")
	}
	return len(expired)
}

func (sm *sessionManager) count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

func (sm *sessionManager) closeAll() {
	sm.stopOnce.Do(func() { close(sm.stop) })

	sm.mu.Lock()
	all := sm.sessions
	sm.sessions = make(map[string]*serverSession)
	sm.mu.Unlock()

	for id, ss := range all {
		sm.closeSession(id, ss.session, "closed")
	}
}

type compileRequest struct {
	Input string `json:"input"`
}

type compileResponse struct {
	Output     json.RawMessage `json:"output,omitempty"`
	DurationMs int64           `json:"duration_ms"`
	Result     string          `json:"result"`
	Error      string          `json:"error,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

type server struct {
	lctx        *libys.Context
	sessionOpts []libys.SessionOption
	sessions    *sessionManager
	metrics     *metrics.Collector
	log         *zap.Logger
	maxInput    int64
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /compile", s.handleCompile)
	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("POST /sessions/{id}/compile", s.handleSessionCompile)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleCloseSession)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", s.metrics.Handler())
	return mux
}

func (s *server) readRequest(w http.ResponseWriter, r *http.Request) (compileRequest, bool) {
	var req compileRequest
	body := http.MaxBytesReader(w, r.Body, s.maxInput)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func (s *server) compile(w http.ResponseWriter, session *libys.Session, id, input string) {
	start := time.Now()
	out, err := session.Compile(input)
	duration := time.Since(start)

	s.metrics.RecordCompile(err, duration)

	resp := compileResponse{
		DurationMs: duration.Milliseconds(),
		Result:     metrics.Result(err),
	}
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Output = json.RawMessage(out)
	}

	s.log.Debug("compile",
		zap.String("session", id),
		zap.String("result", resp.Result),
		zap.Duration("duration", duration),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *server) handleCompile(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readRequest(w, r)
	if !ok {
		return
	}

	session, err := s.lctx.NewSession(s.sessionOpts...)
	if err != nil {
		s.log.Error("session create failed", zap.Error(err))
		http.Error(w, fmt.Sprintf("failed to create session: %v", err), http.StatusInternalServerError)
		return
	}
	defer session.Close()

	s.compile(w, session, "", req.Input)
}

func (s *server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.sessions.create(s.lctx, s.sessionOpts...)
	if err != nil {
		s.log.Error("session create failed", zap.Error(err))
		http.Error(w, fmt.Sprintf("failed to create session: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(createSessionResponse{SessionID: id})
}

func (s *server) handleSessionCompile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	session, ok := s.sessions.get(id)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	req, ok := s.readRequest(w, r)
	if !ok {
		return
	}
	s.compile(w, session, id, req.Input)
}

func (s *server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions.close(r.PathValue("id")) {
		w.WriteHeader(http.StatusNoContent)
	} else {
		http.Error(w, "session not found", http.StatusNotFound)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetInt("port")
	ttl, _ := cmd.Flags().GetDuration("session-ttl")
	maxInput, _ := cmd.Flags().GetInt64("max-input")

	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	log, err := zap.NewProduction()
	if verbose {
		log, err = zap.NewDevelopment()
	}
	if err != nil {
		return err
	}
	defer log.Sync()

	lctx, sessionOpts, err := newContext(cmd, log)
	if err != nil {
		return err
	}
	defer lctx.Close()

	// Load the library up front so a missing libys fails at startup.
	if _, _, err := lctx.Library(libraryPath(cmd)); err != nil {
		return err
	}

	collector := metrics.NewCollector(nil)
	sessions := newSessionManager(ttl, log, collector)
	defer sessions.closeAll()

	srv := &server{
		lctx:        lctx,
		sessionOpts: sessionOpts,
		sessions:    sessions,
		metrics:     collector,
		log:         log,
		maxInput:    maxInput,
	}

	addr := fmt.Sprintf(":%d", port)
	log.Info("goys server listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, srv.routes())
}

func libraryPath(cmd *cobra.Command) string {
	lib, _ := cmd.Root().PersistentFlags().GetString("lib")
	return lib
}
