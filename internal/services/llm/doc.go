// Package llm provides a chat client for OpenAI-compatible completion APIs.
//
// The tag stage uses it to classify articles and extract keywords. Requests
// run in JSON mode; DecodeLLMJSON tolerates code fences and surrounding prose
// that some models add anyway.
//
// Transient failures (HTTP 408/429/5xx, network timeouts, empty content) are
// retried with exponential backoff that honours Retry-After. Context
// cancellation aborts retries immediately.
package llm
