package transcription

import (
	"context"
	"sync"
)

// Memo caches the client built for the last configuration. Func returns the
// same request function while the configuration is unchanged; every call of
// that function still performs its own request.
type Memo struct {
	config Config
	client *Client
	builds int

	mu sync.Mutex
}

// NewMemo creates an empty memo
func NewMemo() *Memo {
	return &Memo{}
}

// Func returns the request function for config, building a client only when
// config differs from the previous one
func (m *Memo) Func(config Config) (TranscribeFunc, error) {
	client, err := m.Client(config)
	if err != nil {
		return nil, err
	}
	return client.Transcribe, nil
}

// Client returns the memoized client for config
func (m *Memo) Client(config Config) (*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil && m.config == config {
		return m.client, nil
	}

	client, err := NewClient(config)
	if err != nil {
		return nil, err
	}
	m.config = config
	m.client = client
	m.builds++
	return client, nil
}

// Builds returns how many clients were built
func (m *Memo) Builds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.builds
}

// Transcribe is a convenience for Func(config) followed by a call
func (m *Memo) Transcribe(ctx context.Context, config Config, file File) (string, error) {
	fn, err := m.Func(config)
	if err != nil {
		return "", err
	}
	return fn(ctx, file)
}
