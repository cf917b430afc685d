// Package llm provides an OpenRouter chat client for documentation
// generation.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.GenerateSegment: document one pipeline segment from its frames
// (attached as image data URLs) and transcript excerpt.
// Client.AnalyzeRelevance: ask the relevance model which transcript ranges
// carry technical content.
// Client.Ping: one unretried JSON round trip that proves the key and model
// are usable.
//
// GenerateSegment and AnalyzeRelevance satisfy pipeline.Generator and
// pipeline.RelevanceAnalyzer directly.
//
// # Configuration
//
// Requires api_key and model; base_url, relevance_model, referer, title and
// timeout are optional. RelevanceModel falls back to Model.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors, empty completions and
// network timeouts with exponential backoff (base 1s, max 10s, up to 5
// attempts by default). Retry-After is honoured. Context cancellation aborts
// retries immediately. A 401 or 403 maps to services.ErrConfiguration and
// other 4xx replies to services.ErrExternalTool.
package llm
