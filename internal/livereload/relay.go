// Package livereload runs a development proxy in front of the supervised
// server and tells connected browsers to reload or re-fetch stylesheets.
package livereload

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/elazarl/goproxy"

	"github.com/ShayCichocki/assetflow/internal/config"
	"github.com/ShayCichocki/assetflow/internal/metrics"
)

// ErrRelayClosed is returned when a closed relay is started or messaged.
var ErrRelayClosed = errors.New("live-reload relay closed")

const (
	routePrefix = "/__assetflow"
	clientPath  = routePrefix + "/livereload.js"
	socketPath  = routePrefix + "/ws"
	metricsPath = routePrefix + "/metrics"
)

//go:embed client.js
var clientJS []byte

var scriptTag = []byte(`<script src="` + clientPath + `"></script>`)

// Relay proxies every request to the development server, injects the
// live-reload client into HTML pages and pushes change notifications to
// browsers over a websocket.
type Relay struct {
	cfg      config.ProxyConfig
	distRoot string
	proxy    *goproxy.ProxyHttpServer
	hub      *hub
	handler  http.Handler
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	timers   []*time.Timer
	closed   bool
}

// Option configures a Relay.
type Option func(*Relay)

// WithMetrics exposes m on the relay's metrics route and records broadcasts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

// WithLogger sets the relay logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a relay forwarding to cfg.Target. distRoot is the
// root-relative distribution directory; streamed paths are reported to
// browsers relative to it.
func New(cfg config.ProxyConfig, distRoot string, opts ...Option) *Relay {
	r := &Relay{
		cfg:      cfg,
		distRoot: path.Clean(distRoot),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "livereload")
	r.hub = newHub(r.metrics, r.logger)
	r.proxy = r.newProxy()

	mux := http.NewServeMux()
	mux.HandleFunc(clientPath, serveClient)
	mux.Handle(socketPath, r.hub)
	mux.Handle(metricsPath, r.metrics.Handler())
	mux.Handle("/", r.proxy)
	r.handler = mux
	return r
}

// newProxy builds the goproxy server. Browsers talk to the relay as an
// origin server, so every request arrives at NonproxyHandler and is
// rewritten to the target before goproxy forwards it.
func (r *Relay) newProxy() *goproxy.ProxyHttpServer {
	p := goproxy.NewProxyHttpServer()
	p.Verbose = false
	// Ignore http(s) proxy env vars; the target is always local.
	p.Tr = &http.Transport{}
	p.ConnectDial = nil

	p.NonproxyHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		req.URL.Scheme = "http"
		req.URL.Host = r.cfg.Target
		req.Host = r.cfg.Target
		p.ServeHTTP(w, req)
	})

	p.OnResponse(goproxy.ContentTypeIs("text/html")).DoFunc(
		func(resp *http.Response, _ *goproxy.ProxyCtx) *http.Response {
			if resp == nil || resp.Header.Get("Content-Encoding") != "" {
				return resp
			}
			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				r.logger.Warn("reading proxied page", "error", err)
				resp.Body = io.NopCloser(bytes.NewReader(body))
				return resp
			}
			body = InjectScript(body)
			resp.Body = io.NopCloser(bytes.NewReader(body))
			resp.ContentLength = int64(len(body))
			resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
			return resp
		})
	return p
}

// InjectScript inserts the live-reload script tag before the last </body>,
// or appends it when the page has none.
func InjectScript(page []byte) []byte {
	i := bytes.LastIndex(bytes.ToLower(page), []byte("</body>"))
	if i < 0 {
		return append(append([]byte(nil), page...), scriptTag...)
	}
	out := make([]byte, 0, len(page)+len(scriptTag))
	out = append(out, page[:i]...)
	out = append(out, scriptTag...)
	return append(out, page[i:]...)
}

func serveClient(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(clientJS)
}

// Handler returns the relay's HTTP handler.
func (r *Relay) Handler() http.Handler {
	return r.handler
}

// Start listens on cfg.Port and serves until ctx is done or Close is called.
// It returns once the listener is open.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRelayClosed
	}
	if r.server != nil {
		return fmt.Errorf("relay already listening on %s", r.listener.Addr())
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", r.cfg.Port))
	if err != nil {
		return fmt.Errorf("listening on port %d: %w", r.cfg.Port, err)
	}
	r.listener = ln
	r.server = &http.Server{Handler: r.handler, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := r.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("relay stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		r.Close()
	}()

	r.logger.Info("live-reload relay listening", "addr", ln.Addr().String(), "target", r.cfg.Target)
	return nil
}

// Addr returns the listening address, or "" before Start.
func (r *Relay) Addr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return ""
	}
	return r.listener.Addr().String()
}

// Clients returns the number of connected browsers.
func (r *Relay) Clients() int {
	return r.hub.count()
}

// Send broadcasts msg to every connected browser and returns how many
// clients it was queued for.
func (r *Relay) Send(msg Message) (int, error) {
	return r.hub.broadcast(msg)
}

// Reload asks every browser to reload the whole page.
func (r *Relay) Reload() {
	r.send(Message{Type: MessageReload})
	r.notify("Reloading browsers")
}

// ReloadAfter schedules a Reload once delay has passed.
func (r *Relay) ReloadAfter(delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.timers = append(r.timers, time.AfterFunc(delay, r.Reload))
}

// Stream tells browsers that paths changed. Stylesheets are injected in
// place; anything else forces a reload. Paths are root-relative and are
// reported relative to the distribution root.
func (r *Relay) Stream(paths ...string) {
	if len(paths) == 0 {
		return
	}
	rel := make([]string, 0, len(paths))
	for _, p := range paths {
		if !strings.EqualFold(path.Ext(p), ".css") {
			r.Reload()
			return
		}
		rel = append(rel, r.relative(p))
	}
	r.send(Message{Type: MessageInject, Paths: rel})
	r.notify("Injected " + strings.Join(rel, ", "))
}

// Notify shows message in connected browsers when notifications are on.
func (r *Relay) Notify(message string) {
	r.notify(message)
}

func (r *Relay) notify(message string) {
	if !r.cfg.Notify {
		return
	}
	r.send(Message{Type: MessageNotify, Message: message})
}

func (r *Relay) send(msg Message) {
	n, err := r.hub.broadcast(msg)
	if err != nil {
		r.logger.Debug("live-reload message not sent", "type", msg.Type, "error", err)
		return
	}
	r.logger.Debug("live-reload message sent", "type", msg.Type, "paths", msg.Paths, "clients", n)
}

func (r *Relay) relative(p string) string {
	p = path.Clean(strings.TrimPrefix(p, "./"))
	if r.distRoot == "." {
		return p
	}
	if rest, ok := strings.CutPrefix(p, r.distRoot+"/"); ok {
		return rest
	}
	return p
}

// Close stops the listener and disconnects every browser.
func (r *Relay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for _, t := range r.timers {
		t.Stop()
	}
	r.timers = nil
	srv := r.server
	r.mu.Unlock()

	r.hub.close()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
