package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Client provides HTTP client functionality for transcription API requests
type Client struct {
	config     Config
	endpoint   string
	httpClient *http.Client
	semaphore  chan struct{} // Rate limiting semaphore

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// Config contains transcription client configuration
type Config struct {
	APIKey    string
	Mode      Mode
	Endpoints Endpoints
	Whisper   WhisperConfig

	Timeout       time.Duration
	MaxRetries    int
	RetryBackoff  time.Duration
	MaxConcurrent int
}

// Response is the JSON body returned by the API
type Response struct {
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"`
	Duration float64   `json:"duration,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
}

// Segment represents a segment of transcribed text
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// NewClient creates a new transcription HTTP client
func NewClient(config Config) (*Client, error) {
	if config.Mode == "" {
		config.Mode = ModeTranscriptions
	}
	if !config.Mode.Valid() {
		return nil, fmt.Errorf("invalid mode: %s", config.Mode)
	}

	endpoint := config.Endpoints.For(config.Mode)
	if endpoint == "" {
		return nil, fmt.Errorf("no endpoint configured for mode %s", config.Mode)
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	if config.RetryBackoff <= 0 {
		config.RetryBackoff = time.Second
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	// Create semaphore for rate limiting
	semaphore := make(chan struct{}, config.MaxConcurrent)

	return &Client{
		config:     config,
		endpoint:   endpoint,
		httpClient: httpClient,
		semaphore:  semaphore,
	}, nil
}

// Endpoint returns the URL requests are sent to
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Transcribe sends file for transcription and returns the text
func (c *Client) Transcribe(ctx context.Context, file File) (string, error) {
	// Acquire semaphore for rate limiting
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	startTime := time.Now()
	c.incrementTotalRequests()

	var lastErr error

	// Retry loop with exponential backoff
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()

			backoffTime := time.Duration(math.Pow(2, float64(attempt-1))) * c.config.RetryBackoff
			if backoffTime > 30*time.Second {
				backoffTime = 30 * time.Second
			}

			select {
			case <-time.After(backoffTime):
			case <-ctx.Done():
				c.incrementFailedRequests()
				return "", ctx.Err()
			}
		}

		text, err := c.doRequest(ctx, file)
		if err == nil {
			c.incrementSuccessRequests()
			c.updateAvgResponseTime(time.Since(startTime))
			return text, nil
		}

		lastErr = err

		if !isRetryableError(ctx, err) {
			break
		}
	}

	c.incrementFailedRequests()
	return "", lastErr
}

// doRequest performs a single HTTP request to the transcription API
func (c *Client) doRequest(ctx context.Context, file File) (string, error) {
	body, contentType, err := c.createMultipartRequest(file)
	if err != nil {
		return "", fmt.Errorf("failed to create multipart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return c.parseResponse(respBody)
}

// parseResponse extracts the transcript. Plain text formats are returned as is.
func (c *Client) parseResponse(body []byte) (string, error) {
	switch c.config.Whisper.ResponseFormat {
	case "text", "srt", "vtt":
		return strings.TrimSpace(string(body)), nil
	}

	var parsed Response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response JSON: %w", err)
	}
	return parsed.Text, nil
}

// createMultipartRequest creates a multipart/form-data request body
func (c *Client) createMultipartRequest(file File) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	name := file.Name
	if name == "" {
		name = FileName
	}
	mimeType := file.MimeType
	if mimeType == "" {
		mimeType = FileMimeType
	}

	// CreateFormFile would label the part application/octet-stream
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	header.Set("Content-Type", mimeType)
	fileWriter, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := fileWriter.Write(file.Data); err != nil {
		return nil, "", fmt.Errorf("failed to write audio data: %w", err)
	}

	for _, field := range c.formFields() {
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", field[0], err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

// formFields returns the non-file fields in submission order
func (c *Client) formFields() [][2]string {
	w := c.config.Whisper

	model := w.Model
	if model == "" {
		model = DefaultModel
	}
	fields := [][2]string{{"model", model}}

	if c.config.Mode == ModeTranscriptions {
		language := w.Language
		if language == "" {
			language = DefaultLanguage
		}
		fields = append(fields, [2]string{"language", language})
	}
	if w.Prompt != "" {
		fields = append(fields, [2]string{"prompt", w.Prompt})
	}
	if w.ResponseFormat != "" {
		fields = append(fields, [2]string{"response_format", w.ResponseFormat})
	}
	if w.Temperature != 0 {
		fields = append(fields, [2]string{"temperature", strconv.FormatFloat(w.Temperature, 'f', -1, 64)})
	}
	return fields
}

// isRetryableError determines if an error is retryable
func isRetryableError(ctx context.Context, err error) bool {
	// the caller gave up
	if ctx.Err() != nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    c.totalRetries,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}

// Close waits for active requests to finish and releases idle connections
func (c *Client) Close() error {
	for i := 0; i < c.config.MaxConcurrent; i++ {
		c.semaphore <- struct{}{}
	}
	c.httpClient.CloseIdleConnections()
	return nil
}
