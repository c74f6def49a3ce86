package textutil

import (
	"regexp"
	"strings"
)

var (
	imageLinkPattern  = regexp.MustCompile(`!\[[^\]]*\]\([^)]+\)`)
	inlineLinkPattern = regexp.MustCompile(`\[[^\]]+\]\([^)]+\)`)

	horizontalSpace     = regexp.MustCompile(`[ \t]+`)
	spaceBeforeNewline  = regexp.MustCompile(`[ \t]+\n`)
	spaceAfterNewline   = regexp.MustCompile(`\n[ \t]+`)
	excessBlankLines    = regexp.MustCompile(`\n{3,}`)
	anyWhitespace       = regexp.MustCompile(`\s+`)
	purifyCharsReplacer = strings.NewReplacer(
		"*", " ", "|", " ", "`", " ", ">", " ", "#", " ", "=", " ", "-", " ",
		"$", " ", "<", " ", "(", " ", ")", " ", ";", " ", "_", " ",
	)
)

// footerMarkers start boilerplate that ends the useful part of an article.
var footerMarkers = []string{"点击“阅读原文”"}

// Texify strips images, links, and trailing subscription boilerplate from
// article Markdown and normalizes whitespace.
func Texify(raw string) string {
	content := imageLinkPattern.ReplaceAllString(raw, "")
	content = inlineLinkPattern.ReplaceAllString(content, "")
	content = cutFooter(content)
	return FormatWhitespace(content)
}

// Purify reduces texified Markdown to plain text: Markdown punctuation becomes
// spaces and all whitespace runs collapse to one space.
func Purify(texified string) string {
	content := purifyCharsReplacer.Replace(texified)
	return strings.TrimSpace(anyWhitespace.ReplaceAllString(content, " "))
}

// FormatWhitespace collapses horizontal whitespace, trims spaces around line
// breaks, and keeps at most one blank line between paragraphs.
func FormatWhitespace(content string) string {
	content = horizontalSpace.ReplaceAllString(content, " ")
	content = spaceBeforeNewline.ReplaceAllString(content, "\n")
	content = spaceAfterNewline.ReplaceAllString(content, "\n")
	content = excessBlankLines.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}

// LineSeparator reports the line ending used by content.
func LineSeparator(content string) string {
	switch {
	case strings.Contains(content, "\r\n"):
		return "\r\n"
	case strings.Contains(content, "\r"):
		return "\r"
	default:
		return "\n"
	}
}

func cutFooter(content string) string {
	cut := len(content)
	for _, marker := range footerMarkers {
		if idx := strings.Index(content, marker); idx >= 0 && idx < cut {
			cut = idx
		}
	}
	return content[:cut]
}
