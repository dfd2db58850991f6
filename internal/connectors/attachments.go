package connectors

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jhillyerd/enmime"

	"biblio/internal/pipeline"
)

type Attachment struct {
	FileName    string
	ContentType string
	Content     []byte
}

// SpreadsheetAttachments returns the parts of a raw message that the workbook
// reader understands, attachments first, then inline and other parts.
func SpreadsheetAttachments(raw []byte) ([]Attachment, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse mail: %w", err)
	}
	for _, perr := range env.Errors {
		if perr.Severe {
			return nil, fmt.Errorf("parse mail: %s", perr.Error())
		}
	}

	parts := append([]*enmime.Part{}, env.Attachments...)
	parts = append(parts, env.Inlines...)
	parts = append(parts, env.OtherParts...)

	out := []Attachment{}
	for _, part := range parts {
		name := strings.TrimSpace(part.FileName)
		if name == "" || !pipeline.SupportedExtension(name) {
			continue
		}
		out = append(out, Attachment{
			FileName:    filepath.Base(name),
			ContentType: part.ContentType,
			Content:     part.Content,
		})
	}
	return out, nil
}
