package a2a

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// keepAliveInterval paces SSE keep-alive frames on message/stream.
const keepAliveInterval = 15 * time.Second

// ServerConfig tunes the HTTP layer.
type ServerConfig struct {
	Addr        string
	BearerToken string
	RateLimit   int
	MaxBodySize int64
	Timeout     time.Duration
}

// Server wraps the engine as a JSON-RPC 2.0 endpoint with SSE
// streaming and unauthenticated agent-card discovery.
type Server struct {
	cfg       ServerConfig
	card      AgentCard
	tasks     *TaskManager
	processor Processor
	limiter   *RateLimiter

	http *http.Server
}

// NewServer builds the server around a processor and its agent card.
func NewServer(cfg ServerConfig, card AgentCard, processor Processor) *Server {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 1 << 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Server{
		cfg:       cfg,
		card:      card,
		tasks:     NewTaskManager(),
		processor: processor,
		limiter:   NewRateLimiter(cfg.RateLimit),
	}
}

// Tasks exposes the task manager, mainly for tests and the cancel
// signal plumbing.
func (s *Server) Tasks() *TaskManager { return s.tasks }

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestSize(s.cfg.MaxBodySize))

	// Discovery stays unauthenticated.
	r.Get("/.well-known/agent.json", s.handleAgentCard)
	r.Get("/agent-card.json", s.handleAgentCard)

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimitMiddleware)
		r.Use(s.authMiddleware)
		r.Post("/", s.handleRPC)
	})
	return r
}

// Start listens on the configured address until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweep := time.NewTicker(rateWindow)
	defer sweep.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sweep.C:
				s.limiter.Sweep()
			}
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.http.Shutdown(shutdownCtx)
	}()

	slog.Info("a2a server listening", "addr", s.cfg.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleAgentCard(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.card)
}

// authMiddleware enforces bearer-token auth. Both sides are hashed to
// equal length before the constant-time comparison.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.BearerToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || !tokenEqual(token, s.cfg.BearerToken) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func tokenEqual(got, want string) bool {
	gotHash := sha256.Sum256([]byte(got))
	wantHash := sha256.Sum256([]byte(want))
	return subtle.ConstantTimeCompare(gotHash[:], wantHash[:]) == 1
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !s.limiter.Allow(ip) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, NewError(nil, CodeParse, "parse error"))
		return
	}
	if req.JSONRPC != "2.0" {
		writeJSON(w, NewError(req.ID, CodeInvalidReq, "jsonrpc must be \"2.0\""))
		return
	}

	switch req.Method {
	case "message/send":
		s.handleSend(w, r, req)
	case "message/stream":
		s.handleStream(w, r, req)
	case "tasks/get":
		s.handleGet(w, req)
	case "tasks/cancel":
		s.handleCancel(w, req)
	default:
		writeJSON(w, NewError(req.ID, CodeMethodUnknown, fmt.Sprintf("unknown method %q", req.Method)))
	}
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request, req Request) {
	var params SendParams
	if err := json.Unmarshal(req.Params, &params); err != nil || len(params.Message.Parts) == 0 {
		writeJSON(w, NewError(req.ID, CodeInvalidParams, "invalid message params"))
		return
	}

	task := s.tasks.Create(params.Message)
	final := s.runTask(r.Context(), task.ID, params.Message, nil)
	writeJSON(w, NewResult(req.ID, final))
}

// runTask drives one task through the state machine. emit, when
// non-nil, receives each transition and artifact for SSE framing.
func (s *Server) runTask(ctx context.Context, taskID string, message Message, emit func(any)) Task {
	procCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	s.tasks.BindCancel(taskID, cancel)
	defer func() {
		s.tasks.ReleaseCancel(taskID)
		cancel()
	}()

	working, err := s.tasks.UpdateState(taskID, StateWorking, nil)
	if err != nil {
		// Canceled before processing began.
		task, _ := s.tasks.Get(taskID, nil)
		return task
	}
	if emit != nil {
		emit(working.Status)
	}

	reply, artifacts, err := s.processor.Process(procCtx, taskID, message)
	if err != nil {
		if task, stateErr := s.tasks.UpdateState(taskID, StateFailed, nil); stateErr == nil {
			if emit != nil {
				emit(task.Status)
			}
			return task
		}
		task, _ := s.tasks.Get(taskID, nil)
		return task
	}

	_ = s.tasks.AppendHistory(taskID, reply)
	for _, artifact := range artifacts {
		_ = s.tasks.AddArtifact(taskID, artifact)
		if emit != nil {
			emit(artifact)
		}
	}

	task, stateErr := s.tasks.UpdateState(taskID, StateCompleted, nil)
	if stateErr != nil {
		task, _ = s.tasks.Get(taskID, nil)
		return task
	}
	if emit != nil {
		emit(task.Status)
	}
	return task
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, req Request) {
	var params SendParams
	if err := json.Unmarshal(req.Params, &params); err != nil || len(params.Message.Parts) == 0 {
		writeJSON(w, NewError(req.ID, CodeInvalidParams, "invalid message params"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, NewError(req.ID, CodeInternal, "streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	task := s.tasks.Create(params.Message)

	events := make(chan any, 16)
	go func() {
		defer close(events)
		s.runTask(r.Context(), task.ID, params.Message, func(ev any) {
			select {
			case events <- ev:
			case <-r.Context().Done():
			}
		})
	}()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	writeSSE(w, flusher, NewResult(req.ID, task.Status))
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				fmt.Fprint(w, "data: [DONE]\n\n")
				flusher.Flush()
				return
			}
			writeSSE(w, flusher, NewResult(req.ID, ev))
		}
	}
}

func (s *Server) handleGet(w http.ResponseWriter, req Request) {
	var params GetParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.ID == "" {
		writeJSON(w, NewError(req.ID, CodeInvalidParams, "invalid task params"))
		return
	}
	task, err := s.tasks.Get(params.ID, params.HistoryLength)
	if errors.Is(err, ErrTaskNotFound) {
		writeJSON(w, NewError(req.ID, CodeTaskNotFound, "task not found"))
		return
	}
	writeJSON(w, NewResult(req.ID, task))
}

func (s *Server) handleCancel(w http.ResponseWriter, req Request) {
	var params CancelParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.ID == "" {
		writeJSON(w, NewError(req.ID, CodeInvalidParams, "invalid task params"))
		return
	}
	task, err := s.tasks.Cancel(params.ID)
	switch {
	case errors.Is(err, ErrTaskNotFound):
		writeJSON(w, NewError(req.ID, CodeTaskNotFound, "task not found"))
	case errors.Is(err, ErrNotCancelable):
		writeJSON(w, NewError(req.ID, CodeNotCancelable, "task is in a terminal state"))
	default:
		writeJSON(w, NewResult(req.ID, task))
	}
}

func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
