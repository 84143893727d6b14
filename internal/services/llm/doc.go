// Package llm provides an OpenAI-compatible chat client for JSON completions.
//
// The analysis stage uses it to turn a session transcript into structured
// notes. Requests always ask for a json_object response; DecodeLLMJSON
// tolerates code fences and leading prose that some models still emit.
//
// # Failure handling
//
// Each CompleteJSON call issues exactly one request. Transport and API errors
// are wrapped with services.ErrExternalService (or ErrPayloadTooLarge for HTTP
// 413) so callers can persist a stable error kind. Retrying is an operator
// decision, never automatic.
package llm
