package llm

import (
	"encoding/json"
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/appforge/internal/build"
	apperrors "git.home.luguber.info/inful/appforge/internal/errors"
)

// stripFence removes a single leading and trailing fenced-code-block
// marker if present, including a language tag on the opening fence.
func stripFence(s string) string {
	cleaned := strings.TrimSpace(s)
	if strings.HasPrefix(cleaned, "```") {
		if idx := strings.IndexByte(cleaned, '\n'); idx >= 0 {
			cleaned = cleaned[idx+1:]
		} else {
			cleaned = strings.TrimPrefix(cleaned, "```")
		}
	}
	cleaned = strings.TrimSpace(cleaned)
	if strings.HasSuffix(cleaned, "```") {
		cleaned = cleaned[:len(cleaned)-3]
	}
	return strings.TrimSpace(cleaned)
}

// parseFileMap turns the model's textual response into a validated
// FileMap. The happy path is a JSON object of filename -> content; if
// that fails, the response is scanned for an embedded HTML document which
// becomes the sole entry-point file.
func parseFileMap(response string) (build.FileMap, error) {
	cleaned := stripFence(response)

	var files build.FileMap
	if err := json.Unmarshal([]byte(cleaned), &files); err != nil {
		if doc, ok := extractHTMLDocument(response); ok {
			return build.FileMap{build.EntryPointFile: doc}, nil
		}
		return nil, apperrors.Wrap(err, apperrors.CategoryValidation,
			"response is neither a JSON file map nor an HTML document").AsPermanent()
	}
	if len(files) == 0 {
		return nil, apperrors.New(apperrors.CategoryValidation, "model returned an empty file map").AsPermanent()
	}

	return enforceEntryPoint(files)
}

// enforceEntryPoint validates the entry-point invariant: the map must
// contain index.html. If it is missing but exactly one .html file exists,
// that file is promoted to the entry-point path; otherwise the map is invalid.
func enforceEntryPoint(files build.FileMap) (build.FileMap, error) {
	if files.HasEntryPoint() {
		return files, nil
	}

	var htmlNames []string
	for name := range files {
		if strings.HasSuffix(name, ".html") {
			htmlNames = append(htmlNames, name)
		}
	}
	if len(htmlNames) == 1 {
		files[build.EntryPointFile] = files[htmlNames[0]]
		delete(files, htmlNames[0])
		return files, nil
	}

	return nil, apperrors.New(apperrors.CategoryValidation,
		"generated code must include %s (found %d html candidates)",
		build.EntryPointFile, len(htmlNames)).AsPermanent()
}

// extractHTMLDocument scans for an embedded HTML document, from
// "<!DOCTYPE html>" or "<html" through the matching "</html>". The
// candidate must survive an HTML parse to be accepted.
func extractHTMLDocument(response string) (string, bool) {
	lower := strings.ToLower(response)
	start := strings.Index(lower, "<!doctype html>")
	if start == -1 {
		start = strings.Index(lower, "<html")
	}
	if start == -1 {
		return "", false
	}

	doc := response[start:]
	if end := strings.LastIndex(strings.ToLower(doc), "</html>"); end != -1 {
		doc = doc[:end+len("</html>")]
	}

	// html.Parse is lenient, but it still rejects streams that cannot be
	// tokenized at all.
	if _, err := html.Parse(strings.NewReader(doc)); err != nil {
		return "", false
	}
	return doc, true
}
