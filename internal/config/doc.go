// Package config provides configuration loading and validation for the whisper recorder.
// It reads a YAML file over the built-in defaults, validates every section and converts
// the result into the options of the recorder and its collaborators.
package config
