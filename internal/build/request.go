package build

import (
	"net/url"
	"regexp"
	"strings"

	apperrors "git.home.luguber.info/inful/appforge/internal/errors"
)

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	taskPattern  = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// BuildRequest is the inbound wire shape for POST /build. It carries the
// shared secret alongside the job fields; Job strips it off.
type BuildRequest struct {
	Email         string       `json:"email"`
	Secret        string       `json:"secret"`
	Task          string       `json:"task"`
	Round         int          `json:"round"`
	Nonce         string       `json:"nonce"`
	Brief         string       `json:"brief"`
	Checks        []string     `json:"checks"`
	EvaluationURL string       `json:"evaluation_url"`
	Attachments   []Attachment `json:"attachments,omitempty"`
}

// Validate shape-checks the request. Authentication (secret comparison)
// is the caller's concern.
func (r *BuildRequest) Validate() error {
	if !emailPattern.MatchString(r.Email) {
		return apperrors.New(apperrors.CategoryValidation, "invalid email address").AsPermanent()
	}
	if r.Secret == "" {
		return apperrors.New(apperrors.CategoryValidation, "secret is required").AsPermanent()
	}
	if err := validateTask(r.Task); err != nil {
		return err
	}
	if r.Round < 1 || r.Round > 2 {
		return apperrors.New(apperrors.CategoryValidation, "round must be 1 or 2").AsPermanent()
	}
	if r.Nonce == "" {
		return apperrors.New(apperrors.CategoryValidation, "nonce is required").AsPermanent()
	}
	if len(r.Brief) < 10 || len(r.Brief) > 5000 {
		return apperrors.New(apperrors.CategoryValidation, "brief must be 10-5000 characters").AsPermanent()
	}
	if len(r.Checks) == 0 {
		return apperrors.New(apperrors.CategoryValidation, "at least one check is required").AsPermanent()
	}
	u, err := url.Parse(r.EvaluationURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperrors.New(apperrors.CategoryValidation, "evaluation_url must be a valid http(s) URL").AsPermanent()
	}
	return nil
}

// validateTask ensures the task id is usable as a repository name.
func validateTask(task string) error {
	if task == "" || len(task) > 100 {
		return apperrors.New(apperrors.CategoryValidation, "task must be 1-100 characters").AsPermanent()
	}
	if !taskPattern.MatchString(task) {
		return apperrors.New(apperrors.CategoryValidation, "task may contain only letters, digits, '_' and '-'").AsPermanent()
	}
	if strings.HasPrefix(task, "-") || strings.HasSuffix(task, "-") {
		return apperrors.New(apperrors.CategoryValidation, "task cannot start or end with a hyphen").AsPermanent()
	}
	if strings.Contains(task, "__") {
		return apperrors.New(apperrors.CategoryValidation, "task cannot contain consecutive underscores").AsPermanent()
	}
	return nil
}

// Job converts a validated request into an immutable BuildJob.
func (r *BuildRequest) Job() BuildJob {
	checks := make([]string, len(r.Checks))
	copy(checks, r.Checks)
	atts := make([]Attachment, len(r.Attachments))
	copy(atts, r.Attachments)
	return BuildJob{
		Email:       r.Email,
		Task:        r.Task,
		Round:       r.Round,
		Nonce:       r.Nonce,
		Brief:       r.Brief,
		Checks:      checks,
		Attachments: atts,
		CallbackURL: r.EvaluationURL,
	}
}
