// Package encoding turns recorded WAV audio into compressed MPEG audio.
//
// Three paths are provided by Pipeline:
//   - Encode: the whole recording is decoded to PCM and fed to the
//     incremental encoder once.
//   - RemoveSilence: the recording is run through a transcoding sandbox with a
//     silence stripping filter. Output too small to hold speech is abandoned.
//   - EncodeChunk: each streaming chunk is encoded and appended to a buffer;
//     the result is the concatenation of every chunk so far.
//
// The ffmpeg backed Encoder and Transcoder are the default collaborators.
package encoding
