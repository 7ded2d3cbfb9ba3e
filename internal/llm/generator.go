package llm

import (
	"context"
	"log/slog"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"git.home.luguber.info/inful/appforge/internal/build"
	apperrors "git.home.luguber.info/inful/appforge/internal/errors"
	"git.home.luguber.info/inful/appforge/internal/logfields"
	"git.home.luguber.info/inful/appforge/internal/retry"
)

// Generator produces application code and documentation from a build
// brief. Model invocation goes through the retry executor; parsing and
// validation failures are never retried here because the model call has
// already consumed its attempts.
type Generator struct {
	client  Client
	exec    *retry.Executor
	account string // hosting account, used for demo links in prompts
}

// NewGenerator wires a Generator. exec carries the model-call policy
// (small fixed attempt count, capped exponential delay).
func NewGenerator(client Client, exec *retry.Executor, account string) *Generator {
	return &Generator{client: client, exec: exec, account: account}
}

// modelRetryable treats every model invocation failure as transient; the
// attempt budget is the only bound.
func modelRetryable(error) bool { return true }

// generate runs one prompt through the model under the retry policy.
func (g *Generator) generate(ctx context.Context, task, op, prompt string) (string, error) {
	var response string
	err := g.exec.Do(ctx, task, op, func(ctx context.Context) error {
		out, err := g.client.Generate(ctx, prompt)
		if err != nil {
			return err
		}
		response = out
		return nil
	}, modelRetryable)
	return response, err
}

// GenerateAppCode decodes attachments, composes the generation request and
// parses the response into a validated FileMap.
func (g *Generator) GenerateAppCode(ctx context.Context, task, brief string, checks []string, attachments []build.Attachment) (build.FileMap, error) {
	decoded := decodeAttachments(attachments)
	prompt := buildCodePrompt(brief, checks, decoded)

	response, err := g.generate(ctx, task, "llm_generate_code", prompt)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CategoryLLM, "code generation failed")
	}

	files, err := parseFileMap(response)
	if err != nil {
		return nil, err
	}

	slog.Info("generated application code",
		logfields.Task(task),
		slog.Int("files", len(files)))
	return files, nil
}

// GenerateReadme produces the project README. Post-processing strips one
// fence pair only; the markdown is sanity-checked but never rejected.
func (g *Generator) GenerateReadme(ctx context.Context, task, brief string, checks []string, files build.FileMap) (string, error) {
	prompt := buildReadmePrompt(task, g.account, brief, checks, files)

	response, err := g.generate(ctx, task, "llm_generate_readme", prompt)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CategoryLLM, "readme generation failed")
	}

	readme := stripFence(response)
	if title, ok := readmeTitle(readme); ok {
		slog.Info("generated readme", logfields.Task(task), slog.String("title", title))
	} else {
		slog.Warn("generated readme has no top-level heading", logfields.Task(task))
	}
	return readme, nil
}

// readmeTitle parses the markdown and returns the first heading text, if any.
func readmeTitle(readme string) (string, bool) {
	source := []byte(readme)
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			var b strings.Builder
			for c := h.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					b.Write(t.Segment.Value(source))
				}
			}
			title := strings.TrimSpace(b.String())
			return title, title != ""
		}
	}
	return "", false
}
