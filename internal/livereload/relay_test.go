package livereload

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"

	"github.com/ShayCichocki/assetflow/internal/config"
	"github.com/ShayCichocki/assetflow/internal/metrics"
)

func newTestRelay(t *testing.T, target string, notify bool) (*Relay, *httptest.Server) {
	t.Helper()
	r := New(config.ProxyConfig{Target: target, Notify: notify}, "client/dist", WithMetrics(metrics.New()))
	srv := httptest.NewServer(r.Handler())
	t.Cleanup(func() {
		r.Close()
		srv.Close()
	})
	return r, srv
}

func dial(t *testing.T, r *Relay, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + socketPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for r.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	return msg
}

func TestInjectScript(t *testing.T) {
	tests := []struct {
		name string
		page string
		want string
	}{
		{
			name: "before body close",
			page: "<html><body><p>hi</p></body></html>",
			want: "<html><body><p>hi</p>" + string(scriptTag) + "</body></html>",
		},
		{
			name: "upper case tag",
			page: "<BODY>x</BODY>",
			want: "<BODY>x" + string(scriptTag) + "</BODY>",
		},
		{
			name: "no body appends",
			page: "<p>fragment</p>",
			want: "<p>fragment</p>" + string(scriptTag),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(InjectScript([]byte(tt.page))); got != tt.want {
				t.Errorf("InjectScript() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRelay_ProxiesAndInjects(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			io.WriteString(w, "<html><body>home</body></html>")
		case "/api":
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"ok":true}`)
		default:
			http.NotFound(w, req)
		}
	}))
	defer upstream.Close()

	_, srv := newTestRelay(t, strings.TrimPrefix(upstream.URL, "http://"), false)

	tests := []struct {
		path string
		want string
	}{
		{"/", "<html><body>home" + string(scriptTag) + "</body></html>"},
		{"/api", `{"ok":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			if err != nil {
				t.Fatalf("GET %s: %v", tt.path, err)
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if string(body) != tt.want {
				t.Errorf("GET %s = %q, want %q", tt.path, body, tt.want)
			}
		})
	}
}

func TestRelay_ServesClientAndMetrics(t *testing.T) {
	_, srv := newTestRelay(t, "127.0.0.1:1", false)

	resp, err := http.Get(srv.URL + clientPath)
	if err != nil {
		t.Fatalf("GET client: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), socketPath) {
		t.Error("client script does not reference the websocket route")
	}

	resp, err = http.Get(srv.URL + metricsPath)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d, want 200", resp.StatusCode)
	}
}

func TestRelay_StreamStylesheetsInjects(t *testing.T) {
	r, srv := newTestRelay(t, "127.0.0.1:1", false)
	conn := dial(t, r, srv)

	r.Stream("client/dist/styles/styles.css", "client/dist/styles/main.css")

	got := readMessage(t, conn)
	want := Message{Type: MessageInject, Paths: []string{"styles/styles.css", "styles/main.css"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("message mismatch (-want +got):\n%s", diff)
	}
}

func TestRelay_StreamMixedReloads(t *testing.T) {
	r, srv := newTestRelay(t, "127.0.0.1:1", true)
	conn := dial(t, r, srv)

	r.Stream("client/dist/styles/styles.css", "client/dist/scripts/scripts.js")

	if got := readMessage(t, conn); got.Type != MessageReload {
		t.Errorf("first message = %+v, want reload", got)
	}
	if got := readMessage(t, conn); got.Type != MessageNotify || got.Message == "" {
		t.Errorf("second message = %+v, want a notification", got)
	}
}

func TestRelay_ClosedRefusesMessages(t *testing.T) {
	r := New(config.ProxyConfig{Target: "127.0.0.1:1"}, "client/dist")
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := r.Send(Message{Type: MessageReload}); !errors.Is(err, ErrRelayClosed) {
		t.Errorf("Send after Close = %v, want ErrRelayClosed", err)
	}
	if err := r.Start(t.Context()); !errors.Is(err, ErrRelayClosed) {
		t.Errorf("Start after Close = %v, want ErrRelayClosed", err)
	}
	// Reload on a closed relay is logged, not fatal.
	r.Reload()
}
