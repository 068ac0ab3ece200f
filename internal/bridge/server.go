// Package bridge exposes the launcher's commands and progress events to the
// frontend over a loopback HTTP server.
package bridge

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/oglauncher/internal/desktop"
	"github.com/tanq16/oglauncher/internal/progress"
	"github.com/tanq16/oglauncher/internal/transfer"
	"golang.org/x/oauth2"
)

// Transfers runs downloads and uploads; *transfer.Engine satisfies it.
type Transfers interface {
	Do(ctx context.Context, req transfer.Request) (string, error)
}

// Files is the filesystem surface; *fsutil.FS satisfies it.
type Files interface {
	Exists(path string) bool
	SizeRecursive(dir string) (map[string]string, error)
	RemoveDir(path string)
	CreateDir(path string)
}

type LaunchFunc func(ctx context.Context, exe string, tok *oauth2.Token) (string, error)

// TokenHeader carries the per-launch secret on every bridge request. The
// event stream may pass it as the token query parameter instead, since
// EventSource cannot set headers.
const TokenHeader = "X-Launcher-Token"

const eventWriteTimeout = 10 * time.Second

type Deps struct {
	Transfers Transfers
	Files     Files
	Hub       *progress.Hub
	Tray      *desktop.Dispatcher
	Launch    LaunchFunc

	// Token is the secret callers must present; a random one is generated
	// when empty. Origins lists the frontend origins allowed to call in.
	// Requests without an Origin header (native clients) are not affected.
	Token   string
	Origins []string
}

type Server struct {
	deps     Deps
	token    string
	commands map[string]commandFunc
	mux      *http.ServeMux
	handler  http.Handler
	srv      *http.Server

	done     chan struct{}
	stopOnce sync.Once
}

func New(addr string, deps Deps) *Server {
	s := &Server{
		deps:  deps,
		token: deps.Token,
		mux:   http.NewServeMux(),
		done:  make(chan struct{}),
	}
	if s.token == "" {
		s.token = uuid.NewString()
	}
	s.commands = s.commandTable()
	s.mux.HandleFunc("POST /invoke/{command}", s.handleInvoke)
	s.mux.HandleFunc("GET /events", s.handleEvents)
	s.mux.HandleFunc("POST /tray/{item}", s.handleTray)
	s.handler = s.guard(s.mux)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Token is the secret the frontend must send in TokenHeader.
func (s *Server) Token() string {
	return s.token
}

// WriteToken stores the token at path, readable only by the current user, so
// the frontend can pick it up at startup.
func (s *Server) WriteToken(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("error creating token directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(s.token), 0o600); err != nil {
		return fmt.Errorf("error writing bridge token: %v", err)
	}
	return nil
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	log.Info().Str("op", "bridge/serve").Str("addr", ln.Addr().String()).Msg("bridge listening")
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("error serving bridge: %v", err)
	}
	return nil
}

func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("error binding bridge address %s: %v", s.srv.Addr, err)
	}
	return s.Serve(ln)
}

// Shutdown ends open event streams and then drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.done) })
	return s.srv.Shutdown(ctx)
}

type response struct {
	OK     bool   `json:"ok"`
	Result any    `json:"result"`
	Error  string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, resp response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Debug().Str("op", "bridge/respond").Err(err).Msg("error writing response")
	}
}

// guard admits only loopback requests from an allowed origin that carry the
// launch token. Preflights are rejected like any other tokenless request.
func (s *Server) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !loopbackHost(r.Host) {
			s.reject(w, r, http.StatusForbidden, "host not allowed")
			return
		}
		if origin := r.Header.Get("Origin"); origin != "" && !slices.Contains(s.deps.Origins, origin) {
			s.reject(w, r, http.StatusForbidden, "origin not allowed")
			return
		}
		if !s.authorized(r) {
			s.reject(w, r, http.StatusUnauthorized, "missing or invalid token")
			return
		}
		if r.Method == http.MethodPost {
			mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || mt != "application/json" {
				s.reject(w, r, http.StatusUnsupportedMediaType, "content type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request, status int, msg string) {
	log.Warn().Str("op", "bridge/guard").Str("method", r.Method).Str("path", r.URL.Path).
		Str("origin", r.Header.Get("Origin")).Str("host", r.Host).Int("status", status).Msg(msg)
	writeJSON(w, status, response{Error: msg})
}

func (s *Server) authorized(r *http.Request) bool {
	got := r.Header.Get(TokenHeader)
	if got == "" && r.Method == http.MethodGet && r.URL.Path == "/events" {
		got = r.URL.Query().Get("token")
	}
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) == 1
}

func loopbackHost(hostport string) bool {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		host = hostport
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("command")
	cmd, ok := s.commands[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, response{Error: fmt.Sprintf("unknown command: %s", name)})
		return
	}
	raw, err := readArgs(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{Error: err.Error()})
		return
	}
	log.Debug().Str("op", "bridge/invoke").Str("command", name).Msg("invoking command")
	// commands run to completion even when the caller goes away
	result, err := cmd(context.WithoutCancel(r.Context()), raw)
	if err != nil {
		var argErr *argsError
		if errors.As(err, &argErr) {
			writeJSON(w, http.StatusBadRequest, response{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, response{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, response{OK: true, Result: result})
}

// handleEvents streams progress events as server-sent events. The optional
// id query parameter restricts the stream to one correlation id.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Hub == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	var filter string
	if id := r.URL.Query().Get("id"); id != "" {
		filter = progress.EventID(id)
	}
	events, unsubscribe := s.deps.Hub.Subscribe(filter, 256)
	defer unsubscribe()

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		log.Debug().Str("op", "bridge/events").Err(err).Msg("streaming unsupported")
		return
	}
	log.Debug().Str("op", "bridge/events").Str("filter", filter).Msg("event subscriber attached")

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				log.Debug().Str("op", "bridge/events").Str("filter", filter).Msg("event subscriber dropped")
				return
			}
			// a client that stops reading must not pin this handler
			if err := rc.SetWriteDeadline(time.Now().Add(eventWriteTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return
			}
			data, _ := json.Marshal(ev.Progress)
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.ID, data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		}
	}
}

var trayClicks = map[string]desktop.Event{
	"click":         desktop.PrimaryClickRequested,
	"primary_click": desktop.PrimaryClickRequested,
}

func (s *Server) handleTray(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tray == nil {
		writeJSON(w, http.StatusServiceUnavailable, response{Error: "tray unavailable"})
		return
	}
	item := r.PathValue("item")
	var handled bool
	if ev, ok := trayClicks[item]; ok {
		handled = s.deps.Tray.Dispatch(ev)
	} else {
		handled = s.deps.Tray.DispatchMenu(item)
	}
	writeJSON(w, http.StatusOK, response{OK: true, Result: handled})
}
