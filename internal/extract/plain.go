package extract

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	apperrors "github.com/hyperjump/kazoeru/pkg/errors"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// extractPlain decodes content as UTF-8. Invalid sequences fail the whole file
// so that nothing partial is indexed for it.
func extractPlain(content []byte) (string, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	if !utf8.Valid(content) {
		return "", fmt.Errorf("%w: content is not valid UTF-8", apperrors.ErrUndecodable)
	}
	return string(content), nil
}
