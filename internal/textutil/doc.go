// Package textutil turns downloaded article Markdown into the forms the
// pipeline stores and feeds to language models.
//
// The primary use cases are:
//   - Converting embedded HTML tables into Markdown tables
//   - Texifying: dropping images, links, and subscription footers
//   - Purifying: flattening texified Markdown into plain whitespace-separated text
//   - Deriving article titles and identifiers that are safe as file names
package textutil
