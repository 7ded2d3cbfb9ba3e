package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/appforge/internal/build"
	"git.home.luguber.info/inful/appforge/internal/retry"
)

func testJob(callbackURL string) build.BuildJob {
	return build.BuildJob{
		Email:       "dev@example.com",
		Task:        "counter-v1",
		Round:       1,
		Nonce:       "abc123",
		Brief:       "Build a counter app",
		Checks:      []string{"page loads"},
		CallbackURL: callbackURL,
	}
}

func testNotifier(attempts int) *Notifier {
	exec := retry.New(retry.Policy{MaxAttempts: attempts, Initial: time.Millisecond, Max: time.Millisecond}, nil)
	return NewNotifier(exec, nil, nil)
}

func TestNotifySuccess_DeliversPayload(t *testing.T) {
	var received SuccessPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	n := testNotifier(3)
	ok := n.NotifySuccess(context.Background(), testJob(srv.URL), build.DeploymentResult{
		RepoURL:   "https://github.com/octocat/counter-v1",
		CommitSHA: "abc",
		PagesURL:  "https://octocat.github.io/counter-v1/",
	})

	assert.True(t, ok)
	assert.Equal(t, "dev@example.com", received.Email)
	assert.Equal(t, "counter-v1", received.Task)
	assert.Equal(t, 1, received.Round)
	assert.Equal(t, "abc123", received.Nonce)
	assert.Equal(t, "abc", received.CommitSHA)
	assert.Equal(t, "https://octocat.github.io/counter-v1/", received.PagesURL)
}

func TestNotifyFailure_CarriesStatusAndError(t *testing.T) {
	var received FailurePayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	n := testNotifier(3)
	ok := n.NotifyFailure(context.Background(), testJob(srv.URL), "generation failed")

	assert.True(t, ok)
	assert.Equal(t, "failure", received.Status)
	assert.Equal(t, "generation failed", received.Error)
	assert.Equal(t, "abc123", received.Nonce)
}

func TestDeliver_RetriesServerErrors(t *testing.T) {
	calls := int32(0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	n := testNotifier(5)
	ok := n.NotifySuccess(context.Background(), testJob(srv.URL), build.DeploymentResult{})

	assert.True(t, ok)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDeliver_ClientErrorNotRetried(t *testing.T) {
	calls := int32(0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	n := testNotifier(5)
	ok := n.NotifySuccess(context.Background(), testJob(srv.URL), build.DeploymentResult{})

	assert.False(t, ok)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDeliver_ExhaustedBudgetReturnsFalse(t *testing.T) {
	calls := int32(0)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	n := testNotifier(3)
	ok := n.NotifyFailure(context.Background(), testJob(srv.URL), "boom")

	assert.False(t, ok, "delivery failure is reported, never raised")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDeliver_UnreachableEndpoint(t *testing.T) {
	n := testNotifier(2)
	ok := n.NotifySuccess(context.Background(), testJob("http://127.0.0.1:1/callback"), build.DeploymentResult{})
	assert.False(t, ok)
}
