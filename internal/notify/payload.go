// Package notify posts build outcomes to the caller-supplied callback
// endpoint with retry and backoff. Delivery is best-effort terminal:
// exhausting the retry budget is logged, never raised.
package notify

import "git.home.luguber.info/inful/appforge/internal/build"

// SuccessPayload reports a completed deployment. Email, task, round and
// nonce let the receiving side correlate the callback with its request.
type SuccessPayload struct {
	Email     string `json:"email"`
	Task      string `json:"task"`
	Round     int    `json:"round"`
	Nonce     string `json:"nonce"`
	RepoURL   string `json:"repo_url"`
	CommitSHA string `json:"commit_sha"`
	PagesURL  string `json:"pages_url"`
}

// FailurePayload reports an aborted build. Status is always "failure".
type FailurePayload struct {
	Email  string `json:"email"`
	Task   string `json:"task"`
	Round  int    `json:"round"`
	Nonce  string `json:"nonce"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

func successPayload(job build.BuildJob, res build.DeploymentResult) SuccessPayload {
	return SuccessPayload{
		Email:     job.Email,
		Task:      job.Task,
		Round:     job.Round,
		Nonce:     job.Nonce,
		RepoURL:   res.RepoURL,
		CommitSHA: res.CommitSHA,
		PagesURL:  res.PagesURL,
	}
}

func failurePayload(job build.BuildJob, errText string) FailurePayload {
	return FailurePayload{
		Email:  job.Email,
		Task:   job.Task,
		Round:  job.Round,
		Nonce:  job.Nonce,
		Status: "failure",
		Error:  errText,
	}
}
