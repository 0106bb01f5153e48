package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"io"
	"path"
	"regexp"
	"sort"
	"strings"

	apperrors "github.com/hyperjump/kazoeru/pkg/errors"
)

// archiveFormat describes an XML-in-zip document: which members hold the
// text and which elements carry it.
type archiveFormat struct {
	members func(name string) bool
	text    *regexp.Regexp
}

var (
	wordText    = regexp.MustCompile(`(?s)<w:t(?:\s[^>]*)?>(.*?)</w:t>`)
	drawingText = regexp.MustCompile(`(?s)<a:t(?:\s[^>]*)?>(.*?)</a:t>`)
	odfText     = regexp.MustCompile(`(?s)<text:(?:p|h|span)(?:\s[^>]*)?>(.*?)</text:(?:p|h|span)>`)
	xmlTag      = regexp.MustCompile(`<[^>]+>`)
)

func exactMember(want string) func(string) bool {
	return func(name string) bool { return name == want }
}

func slideMember(name string) bool {
	ok, _ := path.Match("ppt/slides/slide*.xml", name)
	return ok
}

var archiveFormats = map[string]archiveFormat{
	".docx": {members: exactMember("word/document.xml"), text: wordText},
	".pptx": {members: slideMember, text: drawingText},
	".odt":  {members: exactMember("content.xml"), text: odfText},
	".odp":  {members: exactMember("content.xml"), text: odfText},
	".ods":  {members: exactMember("content.xml"), text: odfText},
}

func (f archiveFormat) extract(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("%w: open archive: %w", apperrors.ErrUndecodable, err)
	}

	var members []*zip.File
	for _, zf := range zr.File {
		if f.members(zf.Name) {
			members = append(members, zf)
		}
	}
	if len(members) == 0 {
		return "", fmt.Errorf("%w: no text members in archive", apperrors.ErrUndecodable)
	}
	sort.SliceStable(members, func(i, j int) bool {
		return naturalLess(members[i].Name, members[j].Name)
	})

	var parts []string
	for _, zf := range members {
		rc, err := zf.Open()
		if err != nil {
			return "", fmt.Errorf("%w: open %s: %w", apperrors.ErrUndecodable, zf.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("%w: read %s: %w", apperrors.ErrUndecodable, zf.Name, err)
		}
		for _, m := range f.text.FindAllSubmatch(data, -1) {
			// ODF spans nest inside paragraphs; strip inner markup.
			s := html.UnescapeString(xmlTag.ReplaceAllString(string(m[1]), ""))
			if s = strings.TrimSpace(s); s != "" {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, " "), nil
}

// naturalLess orders slide2.xml before slide10.xml.
func naturalLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
