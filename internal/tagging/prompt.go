package tagging

import (
	"fmt"
	"strings"
)

const classifyPromptTemplate = `You classify articles by topic.
Choose exactly one category from this list: %s.
If no category fits, choose "%s".
Respond with JSON only, in the form {"category": "<category>"}.`

const keywordPromptTemplate = `You analyse articles and extract the %[1]d keywords that matter most for understanding the main content.
The keywords should let a reader grasp the core of the article quickly.
If the article has fewer than %[1]d meaningful keywords, return all you find.
Keep keywords in the article's language.
Respond with JSON only, in the form {"keywords": ["keyword 1", "keyword 2"]}. Do not add any other text or Markdown.`

func classifyPrompt(categories []string) string {
	quoted := make([]string, len(categories))
	for i, c := range categories {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	return fmt.Sprintf(classifyPromptTemplate, strings.Join(quoted, ", "), NoCategory)
}

func keywordPrompt(count int) string {
	return fmt.Sprintf(keywordPromptTemplate, count)
}
