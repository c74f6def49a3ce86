// Package tagging implements the tag stage: each fetched article is
// classified into one of the configured categories and, unless it fits none
// of them, gets a short JSON array of keywords.
//
// Prompts run against any Chat backend (the llm or ollama clients). Replies
// that do not parse, name an unknown category, or carry no keywords fail the
// record, which leaves the Failed sentinel for the next run to retry.
package tagging
