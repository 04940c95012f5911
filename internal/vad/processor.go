package vad

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Config holds detection thresholds. Levels are RMS normalized to 0..1.
type Config struct {
	SpeechThreshold  float64 `yaml:"speech_threshold"`
	SilenceThreshold float64 `yaml:"silence_threshold"`
	SpeechWindows    int     `yaml:"speech_windows"`
	SilenceWindows   int     `yaml:"silence_windows"`
}

// DefaultConfig returns thresholds suited to 100ms windows: speech is
// declared after two loud windows and ends after ten quiet ones
func DefaultConfig() Config {
	return Config{
		SpeechThreshold:  0.015,
		SilenceThreshold: 0.008,
		SpeechWindows:    2,
		SilenceWindows:   10,
	}
}

// Validate validates the detection thresholds
func (c *Config) Validate() error {
	if c.SpeechThreshold <= 0 || c.SpeechThreshold > 1 {
		return fmt.Errorf("speech_threshold must be in (0, 1], got %f", c.SpeechThreshold)
	}
	if c.SilenceThreshold <= 0 || c.SilenceThreshold > c.SpeechThreshold {
		return fmt.Errorf("silence_threshold must be in (0, speech_threshold], got %f", c.SilenceThreshold)
	}
	if c.SpeechWindows <= 0 {
		return fmt.Errorf("speech_windows must be positive, got %d", c.SpeechWindows)
	}
	if c.SilenceWindows <= 0 {
		return fmt.Errorf("silence_windows must be positive, got %d", c.SilenceWindows)
	}
	return nil
}

// Processor classifies audio windows as speech or silence
type Processor struct {
	config Config

	// VAD state
	inSpeech     bool
	speechCount  int
	silenceCount int

	// Statistics
	totalWindows  uint64
	voiceWindows  uint64
	lastLevel     float64
	lastProcessed time.Time

	mu sync.RWMutex
}

// Result represents the result of processing one window
type Result struct {
	Level    float64 `json:"level"`    // Normalized RMS level
	Speaking bool    `json:"speaking"` // State after this window
	Changed  bool    `json:"changed"`  // Whether this window flipped the state
}

// ProcessorStats represents VAD processor statistics
type ProcessorStats struct {
	TotalWindows    uint64    `json:"total_windows"`
	VoiceWindows    uint64    `json:"voice_windows"`
	VoicePercentage float64   `json:"voice_percentage"`
	LastLevel       float64   `json:"last_level"`
	LastProcessed   time.Time `json:"last_processed"`
	Speaking        bool      `json:"speaking"`
}

// NewProcessor creates a new VAD processor instance
func NewProcessor(config Config) (*Processor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Processor{config: config}, nil
}

// Process classifies a window of samples
func (p *Processor) Process(samples []int16) (*Result, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("empty window")
	}

	level := Level(samples)

	p.mu.Lock()
	defer p.mu.Unlock()

	before := p.inSpeech
	if p.inSpeech {
		if level < p.config.SilenceThreshold {
			p.silenceCount++
			if p.silenceCount >= p.config.SilenceWindows {
				p.inSpeech = false
				p.silenceCount = 0
			}
		} else {
			p.silenceCount = 0
		}
	} else {
		if level >= p.config.SpeechThreshold {
			p.speechCount++
			if p.speechCount >= p.config.SpeechWindows {
				p.inSpeech = true
				p.speechCount = 0
			}
		} else {
			p.speechCount = 0
		}
	}

	// Update statistics
	p.totalWindows++
	if p.inSpeech {
		p.voiceWindows++
	}
	p.lastLevel = level
	p.lastProcessed = time.Now()

	return &Result{
		Level:    level,
		Speaking: p.inSpeech,
		Changed:  before != p.inSpeech,
	}, nil
}

// Level returns the RMS of samples normalized to full scale
func Level(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var energy float64
	for _, sample := range samples {
		s := float64(sample) / 32768.0
		energy += s * s
	}
	return math.Sqrt(energy / float64(len(samples)))
}

// Speaking reports the current state
func (p *Processor) Speaking() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.inSpeech
}

// GetStats returns current processor statistics
func (p *Processor) GetStats() ProcessorStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	voicePercentage := float64(0)
	if p.totalWindows > 0 {
		voicePercentage = float64(p.voiceWindows) / float64(p.totalWindows) * 100
	}

	return ProcessorStats{
		TotalWindows:    p.totalWindows,
		VoiceWindows:    p.voiceWindows,
		VoicePercentage: voicePercentage,
		LastLevel:       p.lastLevel,
		LastProcessed:   p.lastProcessed,
		Speaking:        p.inSpeech,
	}
}

// UpdateThresholds replaces the speech and silence thresholds
func (p *Processor) UpdateThresholds(speech, silence float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	config := p.config
	config.SpeechThreshold = speech
	config.SilenceThreshold = silence
	if err := config.Validate(); err != nil {
		return err
	}
	p.config = config
	return nil
}

// Reset resets the processor state and statistics
func (p *Processor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.inSpeech = false
	p.speechCount = 0
	p.silenceCount = 0
	p.totalWindows = 0
	p.voiceWindows = 0
	p.lastLevel = 0
	p.lastProcessed = time.Time{}
}
