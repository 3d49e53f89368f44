// Package llm wraps the Gemini API (google.golang.org/genai) behind the
// workflow's Completer interface and provides the embedding calls used by
// the knowledge store.
//
// Every call goes through a shared rate limiter and is retried with
// exponential backoff when the API reports a transient failure (429, 5xx)
// or the transport times out. Other API errors fail immediately.
package llm
