package forge

// Repository is the handle returned by CreateOrReuse and consumed by the
// publishing operations. It references an external entity; the pipeline
// never deletes or force-resets it.
type Repository struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Description   string `json:"description"`
	Private       bool   `json:"private"`
	DefaultBranch string `json:"default_branch"`
	HTMLURL       string `json:"html_url"`
}

// Wire types for the git-data endpoints.

type refObject struct {
	SHA  string `json:"sha"`
	Type string `json:"type"`
}

type gitRef struct {
	Ref    string    `json:"ref"`
	Object refObject `json:"object"`
}

type gitCommit struct {
	SHA  string `json:"sha"`
	Tree struct {
		SHA string `json:"sha"`
	} `json:"tree"`
}

type blobRequest struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type blobResponse struct {
	SHA string `json:"sha"`
}

type treeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

type treeRequest struct {
	BaseTree string      `json:"base_tree,omitempty"`
	Tree     []treeEntry `json:"tree"`
}

type treeResponse struct {
	SHA string `json:"sha"`
}

type commitRequest struct {
	Message string   `json:"message"`
	Tree    string   `json:"tree"`
	Parents []string `json:"parents"`
}

type commitResponse struct {
	SHA string `json:"sha"`
}

type updateRefRequest struct {
	SHA string `json:"sha"`
}

type createRefRequest struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

type createRepoRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Private      bool   `json:"private"`
	AutoInit     bool   `json:"auto_init"`
	HasIssues    bool   `json:"has_issues"`
	HasWiki      bool   `json:"has_wiki"`
	HasDownloads bool   `json:"has_downloads"`
}

type createFileRequest struct {
	Message string `json:"message"`
	Content string `json:"content"` // base64
}

type pagesRequest struct {
	Source pagesSource `json:"source"`
}

type pagesSource struct {
	Branch string `json:"branch"`
	Path   string `json:"path"`
}
