package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tanq16/oglauncher/internal/desktop"
	"github.com/tanq16/oglauncher/internal/fsutil"
	"github.com/tanq16/oglauncher/internal/progress"
	"github.com/tanq16/oglauncher/internal/transfer"
	"github.com/tanq16/oglauncher/internal/utils"
	"golang.org/x/oauth2"
)

const (
	testToken    = "launch-secret"
	frontendSite = "tauri://localhost"
)

type fixture struct {
	hub      *progress.Hub
	window   *desktop.HeadlessWindow
	exitCode int
	launched *oauth2.Token
	bridge   *httptest.Server
	mem      billy.Filesystem
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{hub: progress.NewHub(), window: desktop.NewHeadlessWindow(), exitCode: -1}
	engine := transfer.NewEngine(utils.NewLauncherHTTPClient(utils.HTTPClientConfig{}), f.hub)
	f.mem = memfs.New()
	srv := New("127.0.0.1:0", Deps{
		Transfers: engine,
		Files:     fsutil.New(f.mem),
		Hub:       f.hub,
		Tray:      desktop.NewDispatcher(f.window, func(code int) { f.exitCode = code }),
		Launch: func(_ context.Context, exe string, tok *oauth2.Token) (string, error) {
			f.launched = tok
			return "OK", nil
		},
		Token:   testToken,
		Origins: []string{frontendSite},
	})
	f.bridge = httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		f.bridge.Close()
		f.hub.Close()
	})
	return f
}

type reply struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

// do sends an authorized request; edit adjusts it before sending.
func (f *fixture) do(t *testing.T, method, path string, body []byte, edit func(*http.Request)) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.bridge.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(TokenHeader, testToken)
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	if edit != nil {
		edit(req)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func (f *fixture) invoke(t *testing.T, command string, args any) (int, reply) {
	t.Helper()
	body, err := json.Marshal(args)
	require.NoError(t, err)
	resp := f.do(t, http.MethodPost, "/invoke/"+command, body, nil)
	defer resp.Body.Close()
	var r reply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&r))
	return resp.StatusCode, r
}

func TestDownloadStreamsEvents(t *testing.T) {
	f := newFixture(t)
	payload := bytes.Repeat([]byte("x"), 5000)
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write(payload)
	}))
	defer origin.Close()

	resp := f.do(t, http.MethodGet, "/events?id=dl-1", nil, nil)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.Eventually(t, func() bool { return f.hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	dest := filepath.Join(t.TempDir(), "game.pak")
	status, r := f.invoke(t, "download_file", map[string]string{"uid": "dl-1", "url": origin.URL, "filename": dest})
	assert.Equal(t, http.StatusOK, status)
	require.True(t, r.OK, r.Error)
	assert.Equal(t, "null", string(r.Result))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Len(t, data, 5000)

	scanner := bufio.NewScanner(resp.Body)
	var last progress.Progress
	var prev uint64
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			assert.Equal(t, "event: __progress__dl-1", line)
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &last))
		assert.GreaterOrEqual(t, last.Current, prev)
		prev = last.Current
		if last.Current == last.Total {
			break
		}
	}
	assert.Equal(t, progress.Progress{Total: 5000, Current: 5000}, last)
}

func TestDownloadFailureIsErrorString(t *testing.T) {
	f := newFixture(t)
	origin := httptest.NewServer(http.NotFoundHandler())
	defer origin.Close()

	status, r := f.invoke(t, "download_file", map[string]string{"uid": "x", "url": origin.URL, "filename": filepath.Join(t.TempDir(), "f")})
	assert.Equal(t, http.StatusOK, status)
	assert.False(t, r.OK)
	assert.Contains(t, r.Error, "404")
}

func TestUploadReturnsBody(t *testing.T) {
	f := newFixture(t)
	var gotAuth string
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("X-Auth")
		w.Write([]byte("stored"))
	}))
	defer origin.Close()
	src := filepath.Join(t.TempDir(), "save.dat")
	require.NoError(t, os.WriteFile(src, []byte("save-data"), 0o644))

	_, r := f.invoke(t, "upload_file", map[string]any{
		"uid": "up-1", "url": origin.URL, "filename": src,
		"headers": map[string]string{"X-Auth": "abc"},
	})
	require.True(t, r.OK, r.Error)
	assert.Equal(t, `"stored"`, string(r.Result))
	assert.Equal(t, "abc", gotAuth)
}

func TestFilesystemCommands(t *testing.T) {
	f := newFixture(t)

	_, r := f.invoke(t, "create_dir", map[string]string{"path": "/games/one"})
	require.True(t, r.OK)
	_, r = f.invoke(t, "file_exists", map[string]string{"path": "/games/one"})
	assert.Equal(t, "true", string(r.Result))

	require.NoError(t, util.WriteFile(f.mem, "/games/one/a.bin", make([]byte, 12), 0o644))
	_, r = f.invoke(t, "file_size_recursive", map[string]string{"path": "/games"})
	require.True(t, r.OK, r.Error)
	var sizes map[string]string
	require.NoError(t, json.Unmarshal(r.Result, &sizes))
	assert.Equal(t, map[string]string{"/games/one/a.bin": "12"}, sizes)

	_, r = f.invoke(t, "remove_dir", map[string]string{"path": "/games"})
	require.True(t, r.OK)
	_, r = f.invoke(t, "file_exists", map[string]string{"path": "/games/one"})
	assert.Equal(t, "false", string(r.Result))

	_, r = f.invoke(t, "file_size_recursive", map[string]string{"path": "/missing"})
	assert.False(t, r.OK)
}

func TestOpenGamePassesTokens(t *testing.T) {
	f := newFixture(t)
	_, r := f.invoke(t, "open_game", map[string]string{"exe": "/games/game.exe", "access_token": "acc", "refresh_token": "ref"})
	require.True(t, r.OK, r.Error)
	assert.Equal(t, `"OK"`, string(r.Result))
	require.NotNil(t, f.launched)
	assert.Equal(t, "acc", f.launched.AccessToken)
	assert.Equal(t, "ref", f.launched.RefreshToken)
}

func TestInvokeRejectsBadRequests(t *testing.T) {
	f := newFixture(t)

	status, r := f.invoke(t, "format_disk", map[string]string{})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, r.Error, "unknown command")

	status, r = f.invoke(t, "file_exists", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, r.OK)

	resp := f.do(t, http.MethodPost, "/invoke/download_file", []byte("{not json"), nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/invoke/file_exists", nil, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestTrayForwarding(t *testing.T) {
	f := newFixture(t)
	f.window.Hide()
	f.window.Minimize()

	post := func(item string) reply {
		resp := f.do(t, http.MethodPost, "/tray/"+item, nil, nil)
		defer resp.Body.Close()
		var r reply
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&r))
		return r
	}

	assert.Equal(t, "true", string(post("show").Result))
	assert.True(t, f.window.State().Visible)
	assert.True(t, f.window.State().Minimized)

	assert.Equal(t, "true", string(post("click").Result))
	assert.False(t, f.window.State().Minimized)
	assert.True(t, f.window.State().Focused)

	assert.Equal(t, "false", string(post("settings").Result))
	assert.Equal(t, -1, f.exitCode)

	post("exit_app")
	assert.Equal(t, 0, f.exitCode)
}

func TestCrossSiteRequestCannotRemoveDir(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.mem.MkdirAll("/victim/data", 0o755))

	crossSite := func(req *http.Request) {
		req.Header.Del(TokenHeader)
		req.Header.Set("Origin", "https://evil.example")
		req.Header.Set("Content-Type", "text/plain")
	}
	resp := f.do(t, http.MethodPost, "/invoke/remove_dir", []byte(`{"path":"/victim"}`), crossSite)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	withToken := func(req *http.Request) { req.Header.Set("Origin", "https://evil.example") }
	resp = f.do(t, http.MethodPost, "/invoke/remove_dir", []byte(`{"path":"/victim"}`), withToken)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	plainText := func(req *http.Request) { req.Header.Set("Content-Type", "text/plain") }
	resp = f.do(t, http.MethodPost, "/invoke/remove_dir", []byte(`{"path":"/victim"}`), plainText)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)

	_, err := f.mem.Stat("/victim/data")
	assert.NoError(t, err)
}

func TestPreflightIsNeverApproved(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodOptions, "/invoke/open_game", nil, func(req *http.Request) {
		req.Header.Del(TokenHeader)
		req.Header.Set("Origin", "https://evil.example")
		req.Header.Set("Access-Control-Request-Method", "POST")
		req.Header.Set("Access-Control-Request-Headers", TokenHeader)
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Nil(t, f.launched)
}

func TestRequestsRequireToken(t *testing.T) {
	f := newFixture(t)
	f.window.Hide()

	noToken := func(req *http.Request) { req.Header.Del(TokenHeader) }
	wrongToken := func(req *http.Request) { req.Header.Set(TokenHeader, "guess") }

	for _, tc := range []struct {
		name   string
		method string
		path   string
		edit   func(*http.Request)
	}{
		{"invoke without token", http.MethodPost, "/invoke/file_exists", noToken},
		{"invoke with wrong token", http.MethodPost, "/invoke/file_exists", wrongToken},
		{"events without token", http.MethodGet, "/events", noToken},
		{"events with wrong query token", http.MethodGet, "/events?token=guess", noToken},
		{"tray without token", http.MethodPost, "/tray/show", noToken},
		{"query token outside events", http.MethodPost, "/tray/show?token=" + testToken, noToken},
	} {
		t.Run(tc.name, func(t *testing.T) {
			resp := f.do(t, tc.method, tc.path, []byte(`{"path":"/"}`), tc.edit)
			resp.Body.Close()
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
	assert.False(t, f.window.State().Visible)
	assert.Equal(t, 0, f.hub.Subscribers())
}

func TestEventsAcceptQueryToken(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/events?token="+testToken, nil, func(req *http.Request) {
		req.Header.Del(TokenHeader)
		req.Header.Set("Origin", frontendSite)
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
}

func TestFrontendOriginIsAllowed(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.mem.MkdirAll("/games", 0o755))
	resp := f.do(t, http.MethodPost, "/invoke/file_exists", []byte(`{"path":"/games"}`), func(req *http.Request) {
		req.Header.Set("Origin", frontendSite)
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	})
	defer resp.Body.Close()
	var r reply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&r))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "true", string(r.Result))
}

func TestForeignHostIsRejected(t *testing.T) {
	f := newFixture(t)
	for _, host := range []string{"evil.example:47615", "evil.example", "10.0.0.5:47615"} {
		resp := f.do(t, http.MethodPost, "/invoke/file_exists", []byte(`{"path":"/"}`), func(req *http.Request) {
			req.Host = host
		})
		resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, host)
	}
}

func TestLoopbackHost(t *testing.T) {
	for host, want := range map[string]bool{
		"127.0.0.1:47615":   true,
		"localhost:47615":   true,
		"LOCALHOST":         true,
		"[::1]:47615":       true,
		"[::1]":             true,
		"127.0.0.2":         true,
		"evil.example":      false,
		"localhost.evil.io": false,
		"":                  false,
	} {
		assert.Equal(t, want, loopbackHost(host), host)
	}
}

func TestGeneratedToken(t *testing.T) {
	a := New("127.0.0.1:0", Deps{})
	b := New("127.0.0.1:0", Deps{})
	_, err := uuid.Parse(a.Token())
	assert.NoError(t, err)
	assert.NotEqual(t, a.Token(), b.Token())
	assert.Equal(t, "fixed", New("127.0.0.1:0", Deps{Token: "fixed"}).Token())
}

func TestWriteToken(t *testing.T) {
	srv := New("127.0.0.1:0", Deps{})
	path := filepath.Join(t.TempDir(), "run", "launcher.token")
	require.NoError(t, srv.WriteToken(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, srv.Token(), string(data))
	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}
}
