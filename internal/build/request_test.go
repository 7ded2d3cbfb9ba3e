package build

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() BuildRequest {
	return BuildRequest{
		Email:         "dev@example.com",
		Secret:        "s3cret",
		Task:          "counter-v1",
		Round:         1,
		Nonce:         "abc123",
		Brief:         "Build a counter app with increment and decrement buttons",
		Checks:        []string{"page loads", "counter increments"},
		EvaluationURL: "https://evaluator.example.com/notify",
	}
}

func TestValidate_AcceptsWellFormedRequest(t *testing.T) {
	req := validRequest()
	require.NoError(t, req.Validate())
}

func TestValidate_RejectsBadFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*BuildRequest)
	}{
		{"missing email", func(r *BuildRequest) { r.Email = "" }},
		{"malformed email", func(r *BuildRequest) { r.Email = "not-an-email" }},
		{"missing secret", func(r *BuildRequest) { r.Secret = "" }},
		{"empty task", func(r *BuildRequest) { r.Task = "" }},
		{"task too long", func(r *BuildRequest) { r.Task = strings.Repeat("a", 101) }},
		{"task with slash", func(r *BuildRequest) { r.Task = "../../etc" }},
		{"task with space", func(r *BuildRequest) { r.Task = "my task" }},
		{"task leading hyphen", func(r *BuildRequest) { r.Task = "-task" }},
		{"task trailing hyphen", func(r *BuildRequest) { r.Task = "task-" }},
		{"task double underscore", func(r *BuildRequest) { r.Task = "my__task" }},
		{"round zero", func(r *BuildRequest) { r.Round = 0 }},
		{"round three", func(r *BuildRequest) { r.Round = 3 }},
		{"missing nonce", func(r *BuildRequest) { r.Nonce = "" }},
		{"brief too short", func(r *BuildRequest) { r.Brief = "short" }},
		{"brief too long", func(r *BuildRequest) { r.Brief = strings.Repeat("x", 5001) }},
		{"no checks", func(r *BuildRequest) { r.Checks = nil }},
		{"bad callback scheme", func(r *BuildRequest) { r.EvaluationURL = "ftp://host/path" }},
		{"callback not a url", func(r *BuildRequest) { r.EvaluationURL = "not a url" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			assert.Error(t, req.Validate())
		})
	}
}

func TestValidate_TaskEdgeCases(t *testing.T) {
	for _, task := range []string{"a", "task_1", "my-task", strings.Repeat("a", 100)} {
		req := validRequest()
		req.Task = task
		assert.NoError(t, req.Validate(), "task %q should be valid", task)
	}
}

func TestJob_StripsSecretAndCopiesSlices(t *testing.T) {
	req := validRequest()
	req.Attachments = []Attachment{{Name: "data.csv", URL: "data:text/csv,a,b,c"}}
	job := req.Job()

	assert.Equal(t, req.Email, job.Email)
	assert.Equal(t, req.Task, job.Task)
	assert.Equal(t, req.EvaluationURL, job.CallbackURL)

	// Mutating the request afterwards must not leak into the job.
	req.Checks[0] = "changed"
	req.Attachments[0].Name = "changed"
	assert.Equal(t, "page loads", job.Checks[0])
	assert.Equal(t, "data.csv", job.Attachments[0].Name)
}

func TestFileMap_HasEntryPoint(t *testing.T) {
	assert.True(t, FileMap{"index.html": "<html></html>"}.HasEntryPoint())
	assert.False(t, FileMap{"app.html": "<html></html>"}.HasEntryPoint())
	assert.False(t, FileMap{}.HasEntryPoint())
}
