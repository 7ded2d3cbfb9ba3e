// Package build defines the job model flowing through the pipeline.
package build

// EntryPointFile is the file path a static-site deployment treats as the
// site root document. A generated FileMap must contain it.
const EntryPointFile = "index.html"

// Attachment is a named reference sent with a build request. URL may be a
// data: URI (content embedded, base64 or plain) or an external reference.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// BuildJob is an accepted build request. It is immutable once constructed
// and passed by value into the detached pipeline; nothing is persisted
// across process restarts, so an in-flight job dies with the process.
type BuildJob struct {
	Email       string       `json:"email"`
	Task        string       `json:"task"` // unique id, doubles as repository name
	Round       int          `json:"round"`
	Nonce       string       `json:"nonce"`
	Brief       string       `json:"brief"`
	Checks      []string     `json:"checks"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CallbackURL string       `json:"evaluation_url"`
}

// FileMap maps relative file paths to full text content. Order is
// irrelevant. A valid map contains EntryPointFile.
type FileMap map[string]string

// HasEntryPoint reports whether the map contains the designated entry-point file.
func (m FileMap) HasEntryPoint() bool {
	_, ok := m[EntryPointFile]
	return ok
}

// DeploymentResult is assembled incrementally across pipeline steps and
// consumed whole by the outcome notifier.
type DeploymentResult struct {
	RepoURL   string `json:"repo_url"`
	CommitSHA string `json:"commit_sha"`
	PagesURL  string `json:"pages_url"`
}
