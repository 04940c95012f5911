// Package vad provides an energy based voice activity detector. Processor
// classifies windows of PCM by RMS level with hysteresis; Detector polls a
// stream at a fixed interval and emits speaking and stopped_speaking events.
package vad
