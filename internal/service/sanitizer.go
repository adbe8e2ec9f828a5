package service

import (
	"errors"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// maxContentLength caps message content at 100KB before sanitization runs.
const maxContentLength = 100_000

var ErrContentTooLong = errors.New("message content exceeds maximum length")

// contentPolicy allows basic text formatting only: no attributes, no links,
// and script/style bodies are dropped rather than unwrapped.
var contentPolicy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "i", "strong", "em", "u", "s", "br", "p", "code", "pre")
	p.SkipElementsContent("script", "style")
	return p
}()

// sanitizeContent strips dangerous HTML from user-supplied message content.
// Empty output after stripping means the message carried nothing displayable.
func sanitizeContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", nil
	}
	if len(content) > maxContentLength {
		return "", ErrContentTooLong
	}
	return strings.TrimSpace(contentPolicy.Sanitize(content)), nil
}
