// Package stream owns the live microphone stream of a recorder. It acquires the
// stream from a capture device, attaches a voice-activity detector to it and
// releases both again, keeping at most one of each alive at a time.
package stream
