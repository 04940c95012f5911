package audio

import (
	"bytes"
	"sync"
	"testing"
)

func TestChunkBufferAppendAndConcat(t *testing.T) {
	buffer := NewChunkBuffer()

	if buffer.Len() != 0 {
		t.Errorf("Expected empty buffer, got %d chunks", buffer.Len())
	}

	if n := buffer.Append([]byte("one")); n != 1 {
		t.Errorf("Expected 1 chunk after first append, got %d", n)
	}
	buffer.Append([]byte("two"))
	buffer.Append([]byte("three"))

	if buffer.Len() != 3 {
		t.Errorf("Expected 3 chunks, got %d", buffer.Len())
	}
	if buffer.Size() != len("onetwothree") {
		t.Errorf("Expected size %d, got %d", len("onetwothree"), buffer.Size())
	}
	if got := buffer.Concat(); !bytes.Equal(got, []byte("onetwothree")) {
		t.Errorf("Expected concatenation in arrival order, got %q", got)
	}
}

func TestChunkBufferCopiesInput(t *testing.T) {
	buffer := NewChunkBuffer()

	chunk := []byte("abc")
	buffer.Append(chunk)
	chunk[0] = 'z'

	if got := buffer.Concat(); !bytes.Equal(got, []byte("abc")) {
		t.Errorf("Expected buffer to be unaffected by caller mutation, got %q", got)
	}
}

func TestChunkBufferReset(t *testing.T) {
	buffer := NewChunkBuffer()
	buffer.Append([]byte("data"))
	buffer.Reset()

	if buffer.Len() != 0 || buffer.Size() != 0 {
		t.Errorf("Expected empty buffer after reset, got %d chunks / %d bytes", buffer.Len(), buffer.Size())
	}
	if got := buffer.Concat(); len(got) != 0 {
		t.Errorf("Expected empty concatenation after reset, got %q", got)
	}
}

func TestChunkBufferConcurrentAccess(t *testing.T) {
	buffer := NewChunkBuffer()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				buffer.Append([]byte{byte(j)})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = buffer.Concat()
				_ = buffer.Len()
			}
		}()
	}
	wg.Wait()

	if buffer.Len() != 500 {
		t.Errorf("Expected 500 chunks after concurrent appends, got %d", buffer.Len())
	}
}
