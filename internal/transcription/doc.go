// Package transcription implements the HTTP client for the Whisper
// transcription API. Requests are multipart forms carrying the audio file,
// the model and the optional decoding parameters; the endpoint is chosen by
// mode. Memo caches the request function for an unchanged configuration.
package transcription
