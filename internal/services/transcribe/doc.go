// Package transcribe is a client for OpenAI-compatible Whisper transcription
// endpoints (Groq by default). Audio is uploaded as multipart form data and
// the verbose_json response is converted into timestamped transcript lines.
//
// A response without segment timestamps is returned as a single line
// spanning the reported duration.
package transcribe
