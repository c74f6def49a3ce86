package textutil

import (
	"net/url"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultTitle is used when a download carries no usable file name.
const DefaultTitle = "article"

// FormatTitle turns a downloaded file name into an article title: the
// extension is dropped, whitespace runs become single underscores, and the
// result is NFC-normalized. It returns "" when nothing is left.
func FormatTitle(fileName string) string {
	name := strings.TrimSpace(fileName)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = FormatWhitespace(name)
	name = anyWhitespace.ReplaceAllString(name, "_")
	return norm.NFC.String(name)
}

// ArticleID derives the file name stem for an article. Share links of the
// form ".../s/<id>" yield <id>; anything else falls back to the title.
func ArticleID(articleURL, title string) string {
	if id := shareID(articleURL); id != "" {
		return SanitizeFileName(id)
	}
	if id := SanitizeFileName(title); id != "" {
		return id
	}
	return DefaultTitle
}

func shareID(articleURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(articleURL))
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	for i := 0; i < len(segments)-1; i++ {
		if segments[i] == "s" && segments[i+1] != "" {
			return segments[i+1]
		}
	}
	return ""
}
