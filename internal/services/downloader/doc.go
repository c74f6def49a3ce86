// Package downloader fetches articles as Markdown from a
// wechatmp2markdown-compatible download service.
//
// Fetch first confirms the article URL answers a HEAD request with 2xx,
// then asks the service for the Markdown rendering. The article title comes
// from the Content-Disposition filename and embedded HTML tables are rewritten
// as Markdown tables.
package downloader
