package recorder

import (
	"context"

	"github.com/781574155/use-whisper/internal/audio"
	"github.com/781574155/use-whisper/internal/transcription"
)

// Transcript is the published result. A nil Text means no text is available.
type Transcript struct {
	Blob *audio.Blob
	Text *string
}

// HasText reports whether a transcript text is set
func (t Transcript) HasText() bool {
	return t.Text != nil
}

type strategyKind int

const (
	strategyBuiltIn strategyKind = iota
	strategyOverride
)

func (k strategyKind) String() string {
	if k == strategyOverride {
		return "override"
	}
	return "built_in"
}

// transcriptionStrategy is either the memoized network client or the
// caller's OnTranscribe callback, chosen once at construction
type transcriptionStrategy struct {
	kind     strategyKind
	memo     *transcription.Memo
	client   transcription.Config
	override OnTranscribeFunc
}

func newStrategy(config Config) transcriptionStrategy {
	if config.OnTranscribe != nil {
		return transcriptionStrategy{kind: strategyOverride, override: config.OnTranscribe}
	}
	return transcriptionStrategy{
		kind:   strategyBuiltIn,
		memo:   transcription.NewMemo(),
		client: config.clientConfig(),
	}
}

// transcribe runs the strategy over an encoded blob
func (s transcriptionStrategy) transcribe(ctx context.Context, blob audio.Blob) (Transcript, error) {
	if s.kind == strategyOverride {
		result, err := s.override(ctx, blob)
		if err != nil {
			return Transcript{}, err
		}
		if result.Blob == nil {
			result.Blob = &blob
		}
		return result, nil
	}

	fn, err := s.memo.Func(s.client)
	if err != nil {
		return Transcript{}, err
	}
	text, err := fn(ctx, transcription.NewFile(blob))
	if err != nil {
		return Transcript{}, err
	}
	return Transcript{Blob: &blob, Text: &text}, nil
}
