package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyTask        = "task"
	KeyRound       = "round"
	KeyStage       = "stage"
	KeyAttempt     = "attempt"
	KeyMaxAttempts = "max_attempts"
	KeyRepo        = "repository"
	KeyCommit      = "commit_sha"
	KeyURL         = "url"
	KeyDurationMS  = "duration_ms"
	KeyDelay       = "delay"
	KeyRunID       = "run_id"
	KeyError       = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Task(id string) slog.Attr           { return slog.String(KeyTask, id) }
func Round(r int) slog.Attr              { return slog.Int(KeyRound, r) }
func Stage(name string) slog.Attr        { return slog.String(KeyStage, name) }
func Attempt(n int) slog.Attr            { return slog.Int(KeyAttempt, n) }
func MaxAttempts(n int) slog.Attr        { return slog.Int(KeyMaxAttempts, n) }
func Repository(name string) slog.Attr   { return slog.String(KeyRepo, name) }
func Commit(sha string) slog.Attr        { return slog.String(KeyCommit, sha) }
func URL(u string) slog.Attr             { return slog.String(KeyURL, u) }
func DurationMS(ms float64) slog.Attr    { return slog.Float64(KeyDurationMS, ms) }
func Delay(d string) slog.Attr           { return slog.String(KeyDelay, d) }
func RunID(id string) slog.Attr          { return slog.String(KeyRunID, id) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
