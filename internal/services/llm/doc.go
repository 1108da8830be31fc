// Package llm drafts presenter scripts with an OpenAI-compatible chat
// completion API.
//
// The selector calls Client.WriteScript when llm.api_key (or OPENAI_API_KEY)
// is configured. The model is asked for a JSON object holding the spoken
// script, a short title, and a caption; DecodeJSON tolerates code fences and
// surrounding prose. Seeds pass through SanitizeSeed first so article text
// cannot smuggle instructions into the prompt.
//
// Requests go through httpx, so 429 and 5xx replies are retried and the final
// error carries a services marker. Callers treat any error as a cue to fall
// back to the raw article text.
package llm
