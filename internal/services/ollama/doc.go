// Package ollama talks to a local Ollama server's chat API.
//
// It mirrors the llm package surface (CompleteJSON, HealthCheck) so the tag
// stage can switch providers through configuration alone.
package ollama
