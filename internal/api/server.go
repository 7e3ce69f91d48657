package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/bryanchriswhite/waycap/internal/backend"
	"github.com/bryanchriswhite/waycap/internal/capture"
	"github.com/bryanchriswhite/waycap/internal/encode"
	"github.com/bryanchriswhite/waycap/internal/geometry"
	"github.com/bryanchriswhite/waycap/internal/logger"
	"github.com/bryanchriswhite/waycap/internal/overlay"
	"github.com/bryanchriswhite/waycap/internal/window"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// DefaultHost keeps the server on the loopback interface.
const DefaultHost = "127.0.0.1"

// Doer runs one backend command. *backend.Worker implements it.
type Doer interface {
	Do(ctx context.Context, cmd backend.Command) (backend.Result, error)
}

// Defaults fill in request parameters the client leaves out.
type Defaults struct {
	Format        encode.Format
	Quality       int
	Dir           string
	Cursor        bool
	LabelPosition overlay.Anchor
}

// Server represents the HTTP API server
type Server struct {
	router   *mux.Router
	worker   Doer
	defaults Defaults
	upgrader websocket.Upgrader
}

// NewServer creates a new API server
func NewServer(worker Doer, defaults Defaults) *Server {
	if defaults.Format == "" {
		defaults.Format = encode.PNG
	}
	s := &Server{
		router:   mux.NewRouter(),
		worker:   worker,
		defaults: defaults,
		upgrader: websocket.Upgrader{
			CheckOrigin: sameOrigin,
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/outputs", s.handleOutputs).Methods("GET")

	api.HandleFunc("/screenshot", s.handleScreenshot).Methods("GET")
	api.HandleFunc("/window/screenshot", s.handleWindowScreenshot).Methods("GET")

	api.HandleFunc("/ws", s.handleWebsocket)
}

// Handler returns the router behind the same-origin check.
func (s *Server) Handler() http.Handler {
	return s.rejectCrossOrigin(s.router)
}

// Start serves on host:port until ctx is cancelled. An empty host means
// DefaultHost.
func (s *Server) Start(ctx context.Context, host string, port int) error {
	if host == "" {
		host = DefaultHost
	}
	srv := &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.WithComponent("api").Info().
			Str("addr", "http://"+srv.Addr).
			Msg("Starting server")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.WithComponent("api").Info().Msg("Shutting down server")
		return srv.Shutdown(shutdownCtx)
	}
}

// sameOrigin accepts requests without an Origin header and those whose
// origin host matches the request host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// rejectCrossOrigin refuses requests made by pages from another origin.
// No CORS headers are sent, so browsers never expose screenshots to them.
func (s *Server) rejectCrossOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !sameOrigin(r) {
			logger.WithComponent("api").Warn().
				Str("origin", r.Header.Get("Origin")).
				Str("path", r.URL.Path).
				Msg("Rejected cross-origin request")
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "cross-origin requests are not allowed"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusFor maps backend errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, capture.ErrNotFound), errors.Is(err, window.ErrNoFocusedWindow):
		return http.StatusNotFound
	case errors.Is(err, capture.ErrInvalidRegion), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, backend.ErrUnavailable), errors.Is(err, backend.ErrStopped),
		errors.Is(err, capture.ErrConnection), errors.Is(err, window.ErrNoBackend):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		logger.WithComponent("api").Error().Err(err).Int("status", status).Msg("Request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// HTTP Handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

func (s *Server) handleOutputs(w http.ResponseWriter, r *http.Request) {
	res, err := s.do(r.Context(), backend.ListOutputs{})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Outputs)
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	s.serveCapture(w, r, false)
}

func (s *Server) handleWindowScreenshot(w http.ResponseWriter, r *http.Request) {
	s.serveCapture(w, r, true)
}

func (s *Server) serveCapture(w http.ResponseWriter, r *http.Request, focused bool) {
	q, err := s.parseQuery(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	q.window = focused

	res, err := s.do(r.Context(), q.command())
	if err != nil {
		writeError(w, err)
		return
	}

	img := res.Frame.Clone()
	res.Frame.Close()
	if q.label != "" {
		l := q.newLabel(res.Frame.Output.Name, res.Frame.Timestamp)
		if err := overlay.Apply(img, l); err != nil {
			writeError(w, err)
			return
		}
	}

	w.Header().Set("Content-Type", q.format.ContentType())
	w.Header().Set("X-Waycap-Output", res.Frame.Output.Name)
	if err := encode.Encode(w, img, q.format, encode.Options{Quality: q.quality}); err != nil {
		logger.WithComponent("api").Warn().Err(err).Msg("Failed to write screenshot")
	}
}

// do runs cmd and folds the result error into the returned error.
func (s *Server) do(ctx context.Context, cmd backend.Command) (backend.Result, error) {
	res, err := s.worker.Do(ctx, cmd)
	if err != nil {
		return res, err
	}
	return res, res.Err
}

var errBadRequest = errors.New("bad request")

// captureQuery is a parsed capture request from a query string or a
// websocket message.
type captureQuery struct {
	output  string
	region  *geometry.Region
	cursor  bool
	window  bool
	format  encode.Format
	quality int
	label   string
	anchor  overlay.Anchor
}

func (s *Server) parseQuery(v url.Values) (captureQuery, error) {
	return s.newQuery(v.Get("output"), v.Get("region"), v.Get("cursor"),
		v.Get("format"), v.Get("quality"), v.Get("label"))
}

func (s *Server) newQuery(output, region, cursor, format, quality, label string) (captureQuery, error) {
	q := captureQuery{
		output:  output,
		cursor:  s.defaults.Cursor,
		format:  s.defaults.Format,
		quality: s.defaults.Quality,
		label:   label,
		anchor:  s.defaults.LabelPosition,
	}
	if region != "" {
		r, err := geometry.ParseRegion(region)
		if err != nil {
			return q, fmt.Errorf("%w: %v", errBadRequest, err)
		}
		q.region = &r
	}
	if cursor != "" {
		b, err := strconv.ParseBool(cursor)
		if err != nil {
			return q, fmt.Errorf("%w: invalid cursor value %q", errBadRequest, cursor)
		}
		q.cursor = b
	}
	if format != "" {
		f, err := encode.ParseFormat(format)
		if err != nil {
			return q, fmt.Errorf("%w: %v", errBadRequest, err)
		}
		q.format = f
	}
	if quality != "" {
		n, err := strconv.Atoi(quality)
		if err != nil {
			return q, fmt.Errorf("%w: invalid quality %q", errBadRequest, quality)
		}
		q.quality = n
	}
	return q, nil
}

func (q captureQuery) command() backend.Command {
	switch {
	case q.window:
		return backend.CaptureWindow{Cursor: q.cursor}
	case q.region != nil:
		return backend.CaptureRegion{Region: *q.region, Cursor: q.cursor}
	}
	return backend.CaptureScreen{Output: q.output, Cursor: q.cursor}
}

func (q captureQuery) newLabel(output string, ts time.Time) *overlay.Label {
	if q.label == "" {
		return nil
	}
	l := overlay.NewLabel(q.label)
	if q.anchor != "" {
		l.Anchor = q.anchor
	}
	l.Output = output
	l.Time = ts
	return l
}
