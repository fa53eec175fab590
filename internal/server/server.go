package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	apperrors "github.com/GriffinCanCode/hookwatch/internal/errors"
	"github.com/GriffinCanCode/hookwatch/internal/orchestrator"
	"github.com/GriffinCanCode/hookwatch/internal/trace"
)

// Controller is the detector surface the server drives.
type Controller interface {
	StartDetection() bool
	StopDetection() bool
	ResetCounts()
	Status() orchestrator.Status
	Subscribe() (<-chan orchestrator.Event, func())
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	// Prune old timestamps
	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

// client is one WebSocket connection. Every outbound message goes through
// send so the connection sees them in order.
type client struct {
	conn *websocket.Conn
	send chan any
	rl   *rateLimiter
}

func (c *client) enqueue(msg any) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) writeLoop(ctx context.Context) {
	for msg := range c.send {
		wctx, cancel := context.WithTimeout(ctx, WriteTimeout)
		err := wsjson.Write(wctx, c.conn, msg)
		cancel()
		if err != nil {
			trace.Logger(ctx).Debug("websocket write error", "error", err)
		}
	}
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	ctrl        Controller
	unsubscribe func()

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// New creates a server and starts broadcasting detector events.
func New(ctrl Controller) *Server {
	events, unsubscribe := ctrl.Subscribe()
	s := &Server{
		ctrl:        ctrl,
		unsubscribe: unsubscribe,
		clients:     make(map[*client]struct{}),
	}
	go s.broadcast(events)
	return s
}

// Close stops broadcasting.
func (s *Server) Close() {
	s.unsubscribe()
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWebSocket)

	// REST API
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/regions/{id}", s.handleRegion)
	mux.HandleFunc("POST /api/detection/start", s.handleStart)
	mux.HandleFunc("POST /api/detection/stop", s.handleStop)
	mux.HandleFunc("POST /api/counts/reset", s.handleReset)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := err.(*apperrors.AppError)
	if !ok {
		appErr = apperrors.Wrap(err, apperrors.Internal, "request failed")
	}
	trace.Logger(r.Context()).Warn("request error", "path", r.URL.Path, "error", appErr)
	writeJSON(w, appErr.HTTPStatus(), ErrorMessage{Type: "error", Code: appErr.Code.String(), Message: appErr.Error()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusMessage(s.ctrl.Status()))
}

func (s *Server) handleRegion(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	for _, region := range s.ctrl.Status().Regions {
		if region.ID == id {
			writeJSON(w, http.StatusOK, regionView(region))
			return
		}
	}
	writeError(w, r, apperrors.Newf(apperrors.NotFound, "unknown region %q", id))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	changed := s.ctrl.StartDetection()
	writeJSON(w, http.StatusOK, ControlResponse{Changed: changed, Status: statusMessage(s.ctrl.Status())})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	changed := s.ctrl.StopDetection()
	writeJSON(w, http.StatusOK, ControlResponse{Changed: changed, Status: statusMessage(s.ctrl.Status())})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.ctrl.ResetCounts()
	writeJSON(w, http.StatusOK, ControlResponse{Changed: true, Status: statusMessage(s.ctrl.Status())})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		trace.Logger(r.Context()).Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	baseCtx := r.Context()
	log := trace.Logger(baseCtx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	// Initial status goes out before the connection joins the broadcast set
	if err := wsjson.Write(baseCtx, conn, statusMessage(s.ctrl.Status())); err != nil {
		log.Debug("websocket write error", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan any, ClientQueue), rl: &rateLimiter{}}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(context.WithoutCancel(baseCtx))
	}()

	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		close(c.send)
		s.mu.Unlock()
		<-writerDone
	}()

	for {
		var msg json.RawMessage
		if err := wsjson.Read(baseCtx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !c.rl.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			c.enqueue(ErrorMessage{Type: "error", Message: "rate limit exceeded"})
			continue
		}

		var base Message
		if err := json.Unmarshal(msg, &base); err != nil {
			continue
		}

		ctx := baseCtx
		if tc, ok := trace.ExtractFromJSON(msg); ok {
			ctx = trace.WithContext(ctx, tc)
		} else {
			ctx, _ = trace.EnsureContext(ctx)
		}
		s.handleCommand(ctx, c, base.Type)
	}
}

func (s *Server) handleCommand(ctx context.Context, c *client, cmd string) {
	ctx, span := trace.StartSpan(ctx, "ws_command")
	defer span.End()
	span.SetAttr("command", cmd)
	log := trace.Logger(ctx)

	switch cmd {
	case "start":
		log.Info("start command", "started", s.ctrl.StartDetection())
	case "stop":
		log.Info("stop command", "stopped", s.ctrl.StopDetection())
	case "reset":
		s.ctrl.ResetCounts()
	case "status":
		c.enqueue(statusMessage(s.ctrl.Status()))
	default:
		err := apperrors.Newf(apperrors.InvalidArgument, "unknown command %q", cmd)
		span.SetError(err)
		c.enqueue(ErrorMessage{Type: "error", Code: err.Code.String(), Message: err.Error()})
	}
}

func (s *Server) broadcast(events <-chan orchestrator.Event) {
	for evt := range events {
		msg, ok := eventMessage(evt)
		if !ok {
			continue
		}

		s.mu.RLock()
		for c := range s.clients {
			if !c.enqueue(msg) {
				trace.Logger(context.Background()).Warn("websocket client too slow, message dropped", "type", evt.Kind)
			}
		}
		s.mu.RUnlock()
	}
}
