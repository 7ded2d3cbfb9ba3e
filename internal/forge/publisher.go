package forge

import (
	"context"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"git.home.luguber.info/inful/appforge/internal/build"
	apperrors "git.home.luguber.info/inful/appforge/internal/errors"
	"git.home.luguber.info/inful/appforge/internal/logfields"
	"git.home.luguber.info/inful/appforge/internal/retry"
)

const defaultBranch = "main"

// Publisher performs the repository-side pipeline steps. Every hosting
// API call runs through the retry executor; 4xx responses are permanent
// and not-found is a control-flow signal, never a failure.
type Publisher struct {
	client *Client
	exec   *retry.Executor
	probe  *http.Client

	settleDelay  time.Duration
	pollInterval time.Duration

	// hooks for tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// PublisherOptions configures a Publisher.
type PublisherOptions struct {
	Client       *Client
	Executor     *retry.Executor
	SettleDelay  time.Duration
	PollInterval time.Duration
	ProbeClient  *http.Client
}

// NewPublisher wires a Publisher.
func NewPublisher(opts PublisherOptions) *Publisher {
	p := &Publisher{
		client:       opts.Client,
		exec:         opts.Executor,
		probe:        opts.ProbeClient,
		settleDelay:  opts.SettleDelay,
		pollInterval: opts.PollInterval,
		now:          time.Now,
		sleep:        sleepCtx,
	}
	if p.settleDelay <= 0 {
		p.settleDelay = 2 * time.Second
	}
	if p.pollInterval <= 0 {
		p.pollInterval = 10 * time.Second
	}
	if p.probe == nil {
		p.probe = &http.Client{Timeout: 10 * time.Second}
	}
	return p
}

// CreateOrReuse looks up a repository by name under the configured
// account and creates it when absent. The reuse path supports re-running
// a task id across rounds without erroring and issues no create call.
func (p *Publisher) CreateOrReuse(ctx context.Context, name, description string) (*Repository, error) {
	var repo Repository
	err := p.exec.Do(ctx, name, "repo_get", func(ctx context.Context) error {
		return p.client.call(ctx, http.MethodGet, "/repos/"+p.client.owner+"/"+name, nil, &repo)
	}, nil)
	if err == nil {
		slog.Info("repository already exists, reusing", logfields.Repository(name))
		return &repo, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, apperrors.Wrap(err, apperrors.CategoryForge, "look up repository %s", name)
	}

	slog.Info("creating repository", logfields.Repository(name))
	err = p.exec.Do(ctx, name, "repo_create", func(ctx context.Context) error {
		return p.client.call(ctx, http.MethodPost, "/user/repos", createRepoRequest{
			Name:         name,
			Description:  description,
			Private:      false,
			AutoInit:     false,
			HasIssues:    true,
			HasWiki:      false,
			HasDownloads: true,
		}, &repo)
	}, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryForge, "create repository %s", name)
	}

	// Hosting-side propagation: a freshly created repository may reject
	// git-data writes for a moment.
	if err := p.sleep(ctx, p.settleDelay); err != nil {
		return nil, err
	}

	slog.Info("repository created", logfields.Repository(name), logfields.URL(repo.HTMLURL))
	return &repo, nil
}

// EnsureLicense is a no-op when a LICENSE file already exists at the
// repository root; otherwise it commits the MIT license with the current
// year and the account name.
func (p *Publisher) EnsureLicense(ctx context.Context, repo *Repository) error {
	contentsPath := fmt.Sprintf("/repos/%s/%s/contents/%s", p.client.owner, repo.Name, licensePath)

	err := p.exec.Do(ctx, repo.Name, "license_get", func(ctx context.Context) error {
		return p.client.call(ctx, http.MethodGet, contentsPath, nil, nil)
	}, nil)
	if err == nil {
		slog.Info("license already present, skipping", logfields.Repository(repo.Name))
		return nil
	}
	if !apperrors.IsNotFound(err) {
		return apperrors.Wrap(err, apperrors.CategoryForge, "check license in %s", repo.Name)
	}

	content := renderMITLicense(p.now().Year(), p.client.owner)
	err = p.exec.Do(ctx, repo.Name, "license_put", func(ctx context.Context) error {
		return p.client.call(ctx, http.MethodPut, contentsPath, createFileRequest{
			Message: "Add MIT License",
			Content: base64.StdEncoding.EncodeToString([]byte(content)),
		}, nil)
	}, nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CategoryForge, "add license to %s", repo.Name)
	}

	slog.Info("license added", logfields.Repository(repo.Name))
	return nil
}

// Publish builds one atomic commit containing every entry of files plus
// the README, layered on top of the current default-branch head when one
// exists, or as a parentless root commit on an empty repository. The
// repository never observes a partially-pushed state.
func (p *Publisher) Publish(ctx context.Context, repo *Repository, files build.FileMap, readme, message string) (string, error) {
	branch := repo.DefaultBranch
	if branch == "" {
		branch = defaultBranch
	}

	headSHA, baseTree, err := p.branchHead(ctx, repo, branch)
	if err != nil {
		return "", err
	}

	entries, err := p.createBlobs(ctx, repo, files, readme)
	if err != nil {
		return "", err
	}

	gitBase := fmt.Sprintf("/repos/%s/%s/git", p.client.owner, repo.Name)

	var tree treeResponse
	err = p.exec.Do(ctx, repo.Name, "tree_create", func(ctx context.Context) error {
		return p.client.call(ctx, http.MethodPost, gitBase+"/trees", treeRequest{
			BaseTree: baseTree,
			Tree:     entries,
		}, &tree)
	}, nil)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CategoryForge, "create tree in %s", repo.Name)
	}

	parents := []string{}
	if headSHA != "" {
		parents = append(parents, headSHA)
	}
	var commit commitResponse
	err = p.exec.Do(ctx, repo.Name, "commit_create", func(ctx context.Context) error {
		return p.client.call(ctx, http.MethodPost, gitBase+"/commits", commitRequest{
			Message: message,
			Tree:    tree.SHA,
			Parents: parents,
		}, &commit)
	}, nil)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CategoryForge, "create commit in %s", repo.Name)
	}

	if headSHA != "" {
		err = p.exec.Do(ctx, repo.Name, "ref_update", func(ctx context.Context) error {
			return p.client.call(ctx, http.MethodPatch, gitBase+"/refs/heads/"+branch,
				updateRefRequest{SHA: commit.SHA}, nil)
		}, nil)
	} else {
		err = p.exec.Do(ctx, repo.Name, "ref_create", func(ctx context.Context) error {
			return p.client.call(ctx, http.MethodPost, gitBase+"/refs", createRefRequest{
				Ref: "refs/heads/" + branch,
				SHA: commit.SHA,
			}, nil)
		}, nil)
	}
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CategoryForge, "advance %s in %s", branch, repo.Name)
	}

	slog.Info("published commit",
		logfields.Repository(repo.Name),
		logfields.Commit(commit.SHA),
		slog.Int("files", len(entries)))
	return commit.SHA, nil
}

// branchHead resolves the current head commit and its tree. An absent
// ref means the repository is empty: root-commit path.
func (p *Publisher) branchHead(ctx context.Context, repo *Repository, branch string) (headSHA, treeSHA string, err error) {
	gitBase := fmt.Sprintf("/repos/%s/%s/git", p.client.owner, repo.Name)

	var ref gitRef
	err = p.exec.Do(ctx, repo.Name, "ref_get", func(ctx context.Context) error {
		return p.client.call(ctx, http.MethodGet, gitBase+"/ref/heads/"+branch, nil, &ref)
	}, nil)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return "", "", nil
		}
		// GitHub answers 409 for git-data reads on an empty repository;
		// any client-error here means "no head yet", not a failure.
		var ce *apperrors.Error
		if stderrors.As(err, &ce) && ce.Permanent {
			return "", "", nil
		}
		return "", "", apperrors.Wrap(err, apperrors.CategoryForge, "resolve head of %s", repo.Name)
	}

	var head gitCommit
	err = p.exec.Do(ctx, repo.Name, "commit_get", func(ctx context.Context) error {
		return p.client.call(ctx, http.MethodGet, gitBase+"/commits/"+ref.Object.SHA, nil, &head)
	}, nil)
	if err != nil {
		return "", "", apperrors.Wrap(err, apperrors.CategoryForge, "resolve head commit of %s", repo.Name)
	}
	return head.SHA, head.Tree.SHA, nil
}

// createBlobs uploads every file plus the README as blobs and returns the
// tree entries referencing them. Deterministic order keeps the API
// interaction reproducible.
func (p *Publisher) createBlobs(ctx context.Context, repo *Repository, files build.FileMap, readme string) ([]treeEntry, error) {
	gitBase := fmt.Sprintf("/repos/%s/%s/git", p.client.owner, repo.Name)

	paths := make([]string, 0, len(files)+1)
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	contents := make(map[string]string, len(files)+1)
	for path, body := range files {
		contents[path] = body
	}
	contents["README.md"] = readme
	paths = append(paths, "README.md")

	entries := make([]treeEntry, 0, len(paths))
	for _, path := range paths {
		var blob blobResponse
		err := p.exec.Do(ctx, repo.Name, "blob_create", func(ctx context.Context) error {
			return p.client.call(ctx, http.MethodPost, gitBase+"/blobs", blobRequest{
				Content:  contents[path],
				Encoding: "utf-8",
			}, &blob)
		}, nil)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CategoryForge, "create blob for %s", path)
		}
		entries = append(entries, treeEntry{Path: path, Mode: "100644", Type: "blob", SHA: blob.SHA})
	}
	return entries, nil
}
