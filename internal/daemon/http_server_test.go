package daemon

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/appforge/internal/build"
	"git.home.luguber.info/inful/appforge/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("APP_SECRET", "s3cret")
	t.Setenv("GITHUB_TOKEN", "tok")
	t.Setenv("GITHUB_USERNAME", "octocat")
	t.Setenv("GEMINI_API_KEY", "key")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	return cfg
}

// testDaemon wires a daemon that accepts submissions but runs no
// workers: queued jobs stay queued, which is exactly what the HTTP
// layer tests need.
func testDaemon(t *testing.T, cfg *config.Config) *Daemon {
	t.Helper()
	d, err := New(cfg, new(slog.LevelVar))
	require.NoError(t, err)
	d.accepted = true
	return d
}

func testServer(t *testing.T, d *Daemon) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(d.httpServer.Handler)
	t.Cleanup(srv.Close)
	return srv
}

func buildRequestBody(t *testing.T, mutate func(*build.BuildRequest)) []byte {
	t.Helper()
	req := build.BuildRequest{
		Email:         "dev@example.com",
		Secret:        "s3cret",
		Task:          "counter-v1",
		Round:         1,
		Nonce:         "abc123",
		Brief:         "Build a counter app with increment and decrement buttons",
		Checks:        []string{"page loads"},
		EvaluationURL: "https://evaluator.example.com/notify",
	}
	if mutate != nil {
		mutate(&req)
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)
	return body
}

func postBuild(t *testing.T, srv *httptest.Server, body []byte) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/build", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHandleBuild_AcceptsValidRequest(t *testing.T) {
	d := testDaemon(t, testConfig(t))
	srv := testServer(t, d)

	resp := postBuild(t, srv, buildRequestBody(t, nil))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "accepted", body["status"])
	assert.Equal(t, "counter-v1", body["task"])
	assert.Equal(t, 1, d.QueueLength())
}

func TestHandleBuild_WrongSecretIs401(t *testing.T) {
	d := testDaemon(t, testConfig(t))
	srv := testServer(t, d)

	resp := postBuild(t, srv, buildRequestBody(t, func(r *build.BuildRequest) {
		r.Secret = "wrong"
	}))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, d.QueueLength())
}

func TestHandleBuild_MalformedJSONIs400(t *testing.T) {
	d := testDaemon(t, testConfig(t))
	srv := testServer(t, d)

	resp := postBuild(t, srv, []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleBuild_InvalidFieldsAre400(t *testing.T) {
	d := testDaemon(t, testConfig(t))
	srv := testServer(t, d)

	tests := []struct {
		name   string
		mutate func(*build.BuildRequest)
	}{
		{"bad email", func(r *build.BuildRequest) { r.Email = "nope" }},
		{"bad round", func(r *build.BuildRequest) { r.Round = 5 }},
		{"short brief", func(r *build.BuildRequest) { r.Brief = "short" }},
		{"bad task", func(r *build.BuildRequest) { r.Task = "no spaces allowed" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postBuild(t, srv, buildRequestBody(t, tt.mutate))
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestHandleBuild_ShapeCheckedBeforeSecret(t *testing.T) {
	d := testDaemon(t, testConfig(t))
	srv := testServer(t, d)

	resp := postBuild(t, srv, buildRequestBody(t, func(r *build.BuildRequest) {
		r.Secret = "wrong"
		r.Email = "nope"
	}))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleBuild_DuplicateTaskIs409(t *testing.T) {
	d := testDaemon(t, testConfig(t))
	srv := testServer(t, d)

	resp := postBuild(t, srv, buildRequestBody(t, nil))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = postBuild(t, srv, buildRequestBody(t, nil))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandleBuild_QueueFullIs503(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.QueueSize = 1
	d := testDaemon(t, cfg)
	d.queue = make(chan *TrackedJob, 1)
	srv := testServer(t, d)

	resp := postBuild(t, srv, buildRequestBody(t, nil))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = postBuild(t, srv, buildRequestBody(t, func(r *build.BuildRequest) {
		r.Task = "other-task"
	}))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHandleHealth(t *testing.T) {
	d := testDaemon(t, testConfig(t))
	srv := testServer(t, d)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "appforge", body["service"])
}

func TestHandleMetrics(t *testing.T) {
	d := testDaemon(t, testConfig(t))
	srv := testServer(t, d)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleBuildHistory_NoEventsIs404(t *testing.T) {
	d := testDaemon(t, testConfig(t))
	srv := testServer(t, d)

	resp, err := http.Get(srv.URL + "/builds/counter-v1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
