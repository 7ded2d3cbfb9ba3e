package llm

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"git.home.luguber.info/inful/appforge/internal/build"
)

var titleCaser = cases.Title(language.English)

// displayName turns a task id like "counter-v1" into "Counter V1" for
// prompt readability.
func displayName(task string) string {
	cleaned := strings.NewReplacer("-", " ", "_", " ").Replace(task)
	return titleCaser.String(cleaned)
}

func renderChecks(checks []string) string {
	var b strings.Builder
	for _, c := range checks {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderAttachments(attachments []decodedAttachment) string {
	if len(attachments) == 0 {
		return "ATTACHMENTS: None"
	}
	var b strings.Builder
	b.WriteString("ATTACHMENTS PROVIDED:\n")
	for _, att := range attachments {
		fmt.Fprintf(&b, "\n--- File: %s (Type: %s) ---\n", att.Name, att.MediaType)
		b.WriteString(att.Content)
		fmt.Fprintf(&b, "\n--- End of %s ---\n", att.Name)
	}
	return b.String()
}

// buildCodePrompt composes the single generation request embedding the
// brief, the enumerated checks and rendered attachment bodies. The output
// contract is a JSON object mapping filenames to full file content, with
// index.html as the mandatory entry point.
func buildCodePrompt(brief string, checks []string, attachments []decodedAttachment) string {
	return fmt.Sprintf(`You are an expert full-stack web developer. Generate a complete, production-ready web application based on the requirements below.

PROJECT REQUIREMENTS:
%s

EVALUATION CRITERIA (ALL must pass):
%s

%s

INSTRUCTIONS FOR CODE GENERATION:
1. Create a COMPLETE, FUNCTIONAL web application
2. Generate ALL necessary files (HTML, CSS, JavaScript, JSON, etc.)
3. The main entry point MUST be named '%s'
4. You can create additional files as needed (e.g., styles.css, script.js, data.json)
5. If attachments are provided, use their content in your application
6. Use modern web standards and best practices
7. Make it visually appealing, user-friendly and mobile responsive
8. Include proper error handling
9. The app must work when deployed to static hosting only
10. Do NOT use any backend or server-side code
11. Do NOT require npm, build tools, or dependencies beyond CDN links

TECHNOLOGY GUIDELINES:
- Use vanilla HTML, CSS, JavaScript OR modern frameworks via CDN (React, Vue, etc.)
- You can use CDN links for libraries (Bootstrap, jQuery, Chart.js, etc.)
- Prefer modern, clean design and cross-browser compatibility

OUTPUT FORMAT:
Provide your response as a VALID JSON object with filenames as keys and complete code content as values. Example:
{
  "index.html": "<!DOCTYPE html>\n<html>...full HTML content...</html>",
  "style.css": "/* CSS content */",
  "script.js": "// JavaScript content"
}

CRITICAL REQUIREMENTS:
- %s MUST exist and be the main entry point
- ALL code must be production-ready and fully functional
- If attachments are provided, you MUST use them in the application
- Meet ALL evaluation criteria listed above
- Respond with ONLY the JSON object, no additional text
- Ensure proper JSON escaping for multi-line strings

Generate the complete application code now:`,
		brief, renderChecks(checks), renderAttachments(attachments),
		build.EntryPointFile, build.EntryPointFile)
}

// buildReadmePrompt requests a README with a file-listing reference, an
// attribution note naming the generation system, and a demo link
// templated from the task id.
func buildReadmePrompt(task, account, brief string, checks []string, files build.FileMap) string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	return fmt.Sprintf(`Generate a professional, comprehensive README.md file for this web application project.

PROJECT NAME: %s (%s)

PROJECT DESCRIPTION:
%s

FEATURES/REQUIREMENTS:
%s

FILES IN PROJECT: %s

INSTRUCTIONS:
Create a well-structured README.md with the following sections:

1. Project Title - clear, descriptive title
2. Description - brief overview of what the app does
3. Features - bullet-point list of key features
4. Demo - link to the live demo: https://%s.github.io/%s/
5. Usage - how to use the application
6. Technology Stack - technologies used
7. Project Structure - file organization
8. License - mention the MIT License
9. Attribution - credit that this was generated with AI assistance using Google Gemini

Make it professional, clear, and engaging. Use proper Markdown formatting.
Respond with ONLY the README content.

Generate the complete README.md now:`,
		displayName(task), task, brief, renderChecks(checks),
		strings.Join(names, ", "), account, task)
}
