package forge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	apperrors "git.home.luguber.info/inful/appforge/internal/errors"
	"git.home.luguber.info/inful/appforge/internal/logfields"
)

// PagesURL computes the deterministic static-site URL for a repository
// under the configured account.
func (p *Publisher) PagesURL(name string) string {
	return fmt.Sprintf("https://%s.github.io/%s/", p.client.owner, name)
}

// ActivateSite idempotently enables static-site hosting for the default
// branch root and polls the site URL until it answers or the attempt
// budget runs out. Absence of confirmation is not a failure: hosting
// propagation delay is expected and outside this system's control, so
// the URL is returned with a warning instead.
func (p *Publisher) ActivateSite(ctx context.Context, repo *Repository, maxPollAttempts int) (string, error) {
	if err := p.enablePages(ctx, repo); err != nil {
		return "", err
	}

	siteURL := p.PagesURL(repo.Name)
	if p.awaitSite(ctx, repo.Name, siteURL, maxPollAttempts) {
		slog.Info("static site is live", logfields.Repository(repo.Name), logfields.URL(siteURL))
		return siteURL, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	slog.Warn("static site not confirmed within poll budget, returning URL anyway",
		logfields.Repository(repo.Name), logfields.URL(siteURL))
	return siteURL, nil
}

// enablePages turns on Pages for the default branch root. Already-enabled
// (existing config, or a 409 on create) is success, not an error.
func (p *Publisher) enablePages(ctx context.Context, repo *Repository) error {
	pagesPath := fmt.Sprintf("/repos/%s/%s/pages", p.client.owner, repo.Name)

	err := p.exec.Do(ctx, repo.Name, "pages_get", func(ctx context.Context) error {
		return p.client.call(ctx, http.MethodGet, pagesPath, nil, nil)
	}, nil)
	if err == nil {
		slog.Info("static site hosting already enabled", logfields.Repository(repo.Name))
		return nil
	}
	if !apperrors.IsNotFound(err) {
		return apperrors.Wrap(err, apperrors.CategoryForge, "check pages status of %s", repo.Name)
	}

	branch := repo.DefaultBranch
	if branch == "" {
		branch = defaultBranch
	}
	err = p.exec.Do(ctx, repo.Name, "pages_enable", func(ctx context.Context) error {
		return p.createPagesSite(ctx, pagesPath, branch)
	}, nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CategoryForge, "enable pages for %s", repo.Name)
	}

	slog.Info("static site hosting enabled", logfields.Repository(repo.Name))
	return nil
}

// createPagesSite issues the create call directly so a 409 ("already
// exists") can be accepted as success.
func (p *Publisher) createPagesSite(ctx context.Context, pagesPath, branch string) error {
	req, err := p.client.newRequest(ctx, http.MethodPost, pagesPath, pagesRequest{
		Source: pagesSource{Branch: branch, Path: "/"},
	})
	if err != nil {
		return err
	}
	resp, err := p.client.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CategoryNetwork, "enable pages")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusCreated, resp.StatusCode == http.StatusConflict:
		return nil
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return classifyStatus(resp.StatusCode,
			fmt.Sprintf("POST %s: %s: %s", pagesPath, resp.Status, strings.TrimSpace(string(snippet))))
	}
}

// awaitSite issues lightweight reachability checks at a fixed interval,
// returning true as soon as one succeeds.
func (p *Publisher) awaitSite(ctx context.Context, name, siteURL string, maxAttempts int) bool {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := p.sleep(ctx, p.pollInterval); err != nil {
			return false
		}
		if p.probeSite(ctx, siteURL) {
			return true
		}
		slog.Debug("static site not ready yet",
			logfields.Repository(name),
			logfields.Attempt(attempt),
			logfields.MaxAttempts(maxAttempts))
	}
	return false
}

func (p *Publisher) probeSite(ctx context.Context, siteURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, siteURL, nil)
	if err != nil {
		return false
	}
	resp, err := p.probe.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
	return resp.StatusCode == http.StatusOK
}

// sleepCtx sleeps for d or until ctx is done. Polling must be a real
// suspension point, interruptible at shutdown.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
