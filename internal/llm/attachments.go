package llm

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"git.home.luguber.info/inful/appforge/internal/build"
)

// decodedAttachment is an attachment resolved to inline content ready for
// prompt interpolation.
type decodedAttachment struct {
	Name      string
	Content   string
	MediaType string
}

// decodeAttachments resolves data: URIs to their content. External URLs
// and undecodable payloads degrade to placeholder strings; a bad
// attachment never aborts the job.
func decodeAttachments(attachments []build.Attachment) []decodedAttachment {
	decoded := make([]decodedAttachment, 0, len(attachments))
	for _, att := range attachments {
		name := att.Name
		if name == "" {
			name = "unknown"
		}
		if !strings.HasPrefix(att.URL, "data:") {
			decoded = append(decoded, decodedAttachment{
				Name:      name,
				Content:   fmt.Sprintf("[External URL: %s]", att.URL),
				MediaType: "text/plain",
			})
			continue
		}
		d, err := decodeDataURI(name, att.URL)
		if err != nil {
			slog.Warn("failed to decode attachment", "attachment", name, "error", err)
			decoded = append(decoded, decodedAttachment{
				Name:      name,
				Content:   fmt.Sprintf("[Failed to decode: %v]", err),
				MediaType: "text/plain",
			})
			continue
		}
		decoded = append(decoded, d)
	}
	return decoded
}

// decodeDataURI parses data:media/type[;base64],payload.
func decodeDataURI(name, uri string) (decodedAttachment, error) {
	header, payload, ok := strings.Cut(uri, ",")
	if !ok {
		return decodedAttachment{}, fmt.Errorf("malformed data URI")
	}

	meta := strings.TrimPrefix(header, "data:")
	mediaType := "text/plain"
	isBase64 := false
	for i, part := range strings.Split(meta, ";") {
		switch {
		case part == "base64":
			isBase64 = true
		case i == 0 && part != "":
			mediaType = part
		}
	}

	content := payload
	if isBase64 {
		raw, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return decodedAttachment{}, fmt.Errorf("base64 decode: %w", err)
		}
		content = string(raw)
	}

	return decodedAttachment{Name: name, Content: content, MediaType: mediaType}, nil
}
