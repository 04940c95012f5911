// Package device captures microphone audio by running a recording program
// (arecord or ffmpeg) that writes mono signed 16-bit little-endian PCM to its
// standard output. Each acquisition starts a new process exposed as a
// stream.Stream; stopping its track ends the process.
package device
