package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"git.home.luguber.info/inful/appforge/internal/build"
	apperrors "git.home.luguber.info/inful/appforge/internal/errors"
	"git.home.luguber.info/inful/appforge/internal/logfields"
	"git.home.luguber.info/inful/appforge/internal/metrics"
	"git.home.luguber.info/inful/appforge/internal/retry"
)

// Notifier delivers outcome payloads to callback endpoints.
type Notifier struct {
	httpClient *http.Client
	exec       *retry.Executor
	recorder   metrics.Recorder
}

// NewNotifier wires a Notifier. The HTTP client is shared and must be
// safe for concurrent use; nil falls back to a pooled default.
func NewNotifier(exec *retry.Executor, httpClient *http.Client, recorder metrics.Recorder) *Notifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Notifier{httpClient: httpClient, exec: exec, recorder: recorder}
}

// NotifySuccess posts the deployment details to the job's callback URL.
// The return value reports whether the endpoint acknowledged with a 2xx.
func (n *Notifier) NotifySuccess(ctx context.Context, job build.BuildJob, res build.DeploymentResult) bool {
	return n.deliver(ctx, job, successPayload(job, res))
}

// NotifyFailure posts a failure description to the job's callback URL.
func (n *Notifier) NotifyFailure(ctx context.Context, job build.BuildJob, errText string) bool {
	return n.deliver(ctx, job, failurePayload(job, errText))
}

func (n *Notifier) deliver(ctx context.Context, job build.BuildJob, payload any) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal callback payload", logfields.Task(job.Task), logfields.Error(err))
		n.recorder.IncCallbackDelivery(false)
		return false
	}

	err = n.exec.Do(ctx, job.Task, "notify", func(ctx context.Context) error {
		return n.post(ctx, job.CallbackURL, body)
	}, nil)
	if err != nil {
		slog.Error("callback delivery failed",
			logfields.Task(job.Task),
			logfields.URL(job.CallbackURL),
			logfields.Error(err))
		n.recorder.IncCallbackDelivery(false)
		return false
	}

	slog.Info("callback delivered", logfields.Task(job.Task), logfields.URL(job.CallbackURL))
	n.recorder.IncCallbackDelivery(true)
	return true
}

// post sends one attempt. 2xx succeeds, 4xx is permanent (a caller-side
// mistake will not heal on retry), everything else stays retryable.
func (n *Notifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return apperrors.Wrap(err, apperrors.CategoryNotify, "build callback request").AsPermanent()
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CategoryNetwork, "callback request failed")
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return apperrors.New(apperrors.CategoryNotify, "callback rejected with %s: %s",
			resp.Status, string(snippet)).AsPermanent()
	default:
		return apperrors.New(apperrors.CategoryNotify, "callback returned %s: %s",
			resp.Status, string(snippet))
	}
}
