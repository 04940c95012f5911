package transcription

import (
	"context"
	"net/http"
	"testing"
)

func TestMemoReusesClientForSameConfig(t *testing.T) {
	server, requests := newTestServer(t, http.StatusOK, `{"text":"hi"}`)
	memo := NewMemo()
	config := Config{APIKey: "k", Mode: ModeTranscriptions, Endpoints: testEndpoints(server)}

	first, err := memo.Client(config)
	if err != nil {
		t.Fatalf("Client failed: %v", err)
	}
	second, err := memo.Client(config)
	if err != nil {
		t.Fatalf("Client failed: %v", err)
	}
	if first != second {
		t.Error("Expected the same client for an unchanged config")
	}

	// each call is still a fresh request
	for i := 0; i < 2; i++ {
		if _, err := memo.Transcribe(context.Background(), config, testFile()); err != nil {
			t.Fatalf("Transcribe failed: %v", err)
		}
	}
	if len(requests) != 2 {
		t.Errorf("Expected 2 requests, got %d", len(requests))
	}
	if memo.Builds() != 1 {
		t.Errorf("Expected 1 build, got %d", memo.Builds())
	}
}

func TestMemoRebuildsOnChange(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK, `{"text":"hi"}`)
	memo := NewMemo()
	base := Config{APIKey: "k", Mode: ModeTranscriptions, Endpoints: testEndpoints(server)}

	changes := []func(c Config) Config{
		func(c Config) Config { c.APIKey = "other"; return c },
		func(c Config) Config { c.Mode = ModeTranslations; return c },
		func(c Config) Config { c.Whisper.Language = "de"; return c },
		func(c Config) Config { c.Endpoints.Transcriptions += "?v=2"; return c },
	}

	if _, err := memo.Func(base); err != nil {
		t.Fatalf("Func failed: %v", err)
	}
	for i, change := range changes {
		if _, err := memo.Func(change(base)); err != nil {
			t.Fatalf("Func %d failed: %v", i, err)
		}
		if _, err := memo.Func(base); err != nil {
			t.Fatalf("Func failed: %v", err)
		}
	}

	if expected := 1 + 2*len(changes); memo.Builds() != expected {
		t.Errorf("Expected %d builds, got %d", expected, memo.Builds())
	}
}

func TestMemoPropagatesConfigError(t *testing.T) {
	memo := NewMemo()
	if _, err := memo.Func(Config{Mode: "bogus", Endpoints: DefaultEndpoints()}); err == nil {
		t.Error("Expected error for invalid config")
	}
	if memo.Builds() != 0 {
		t.Errorf("Expected no builds, got %d", memo.Builds())
	}
}
