// Package audio holds the audio value types shared by the recorder: blobs with
// their MIME type, WAV encoding/decoding of mono PCM-16, and the ordered buffer
// of encoded chunks accumulated while streaming.
package audio
