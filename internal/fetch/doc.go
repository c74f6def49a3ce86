// Package fetch implements the download stage: every record's article URL is
// fetched through the download service and saved as Markdown in the article
// directory.
//
// A successful fetch fills raw_filename, download_time and article_name. A
// failed one leaves the sentinels Failed, N/A and N/A so the next run retries
// it.
package fetch
