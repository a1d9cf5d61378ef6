package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ClientConfig contains remote engine client configuration.
type ClientConfig struct {
	Endpoint      string
	APIKey        string
	Timeout       time.Duration
	MaxConcurrent int
}

// Client implements Engine against a remote serving process speaking the
// generation HTTP API. Generation requests are submitted exactly once; the
// engine owns retries and scheduling.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	semaphore  chan struct{} // Bounds concurrent generate calls

	model   modelInfo
	special SpecialTokens

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// modelInfo mirrors the engine's GET /v1/models/info response.
type modelInfo struct {
	Model          string         `json:"model"`
	Task           string         `json:"task"`
	MaxModelLen    int            `json:"max_model_len"`
	SpecialTokens  map[string]int `json:"special_tokens"`
	Languages      map[string]int `json:"languages"`
	TimestampBegin int            `json:"timestamp_begin"`
	TimePrecision  float64        `json:"time_precision"`
}

// ClientStats represents client statistics.
type ClientStats struct {
	Model           string        `json:"model"`
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// NewClient creates a remote engine client and validates the model's
// capabilities at startup. A model that does not serve the transcription
// task or does not expose the required decoder markers fails here with a
// configuration error rather than per-request.
func NewClient(ctx context.Context, config ClientConfig, language string) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 16
	}

	c := &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		semaphore: make(chan struct{}, config.MaxConcurrent),
	}

	info, err := c.fetchModelInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query engine model info: %w", err)
	}

	special, err := resolveSpecialTokens(info, language)
	if err != nil {
		return nil, fmt.Errorf("model %q is not usable for transcription: %w", info.Model, err)
	}

	c.model = *info
	c.special = special

	return c, nil
}

// resolveSpecialTokens checks the model capabilities and builds the decoder
// seed markers for the configured language.
func resolveSpecialTokens(info *modelInfo, language string) (SpecialTokens, error) {
	if info.Task != "transcription" {
		return SpecialTokens{}, fmt.Errorf("engine serves task %q, need \"transcription\"", info.Task)
	}

	if info.MaxModelLen <= 0 {
		return SpecialTokens{}, fmt.Errorf("engine reports non-positive max_model_len %d", info.MaxModelLen)
	}

	sot, ok := info.SpecialTokens["startoftranscript"]
	if !ok {
		return SpecialTokens{}, fmt.Errorf("model does not expose a startoftranscript token")
	}

	transcribe, ok := info.SpecialTokens["transcribe"]
	if !ok {
		return SpecialTokens{}, fmt.Errorf("model does not expose a transcribe task token")
	}

	lang, ok := info.Languages[language]
	if !ok {
		return SpecialTokens{}, fmt.Errorf("model does not support language %q", language)
	}

	if info.TimestampBegin <= 0 || info.TimePrecision <= 0 {
		return SpecialTokens{}, fmt.Errorf("model does not expose timestamp tokens")
	}

	return SpecialTokens{
		StartOfTranscript: sot,
		Language:          lang,
		Transcribe:        transcribe,
		TimestampBegin:    info.TimestampBegin,
		TimePrecision:     info.TimePrecision,
	}, nil
}

// Generate submits one window's generation request and waits for the
// finalized token sequence. The request is never retried; cancellation of
// ctx aborts the in-flight HTTP call.
func (c *Client) Generate(ctx context.Context, req *GenerationRequest) (*TokenSequence, error) {
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	startTime := time.Now()
	c.incrementTotalRequests()

	body := generateRequest{
		RequestID: req.RequestID,
		Encoder: encoderPayload{
			Audio:      encodePCM(req.Prompt.Audio),
			SampleRate: req.Prompt.SampleRate,
		},
		DecoderTokenIDs: req.Prompt.DecoderSeed,
		Sampling:        req.Params,
	}

	var seq TokenSequence
	if err := c.postJSON(ctx, "/v1/generate", body, &seq); err != nil {
		c.incrementFailedRequests()
		return nil, fmt.Errorf("generation request %s failed: %w", req.RequestID, err)
	}

	c.recordSuccess(time.Since(startTime))

	return &seq, nil
}

// Tokenizer returns the engine's id/text codec.
func (c *Client) Tokenizer() Tokenizer {
	return (*clientTokenizer)(c)
}

// MaxModelLen returns the model context-length limit in tokens.
func (c *Client) MaxModelLen() int {
	return c.model.MaxModelLen
}

// SpecialTokens returns the decoder seed markers resolved at startup.
func (c *Client) SpecialTokens() SpecialTokens {
	return c.special
}

// Model returns the identifier of the served model.
func (c *Client) Model() string {
	return c.model.Model
}

// clientTokenizer adapts the client to the Tokenizer interface.
type clientTokenizer Client

// IDToToken returns the symbolic form of a token id. Timestamp tokens are
// synthesized locally from the timestamp base and precision so segment
// decoding never round-trips to the engine per token.
func (t *clientTokenizer) IDToToken(id int) (string, error) {
	if id < 0 {
		return "", fmt.Errorf("invalid token id %d", id)
	}

	c := (*Client)(t)
	if id >= c.special.TimestampBegin {
		value := float64(id-c.special.TimestampBegin) * c.special.TimePrecision
		return fmt.Sprintf("<|%.2f|>", value), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
	defer cancel()

	text, err := c.detokenize(ctx, []int{id}, false)
	if err != nil {
		return "", err
	}

	return text, nil
}

// Decode converts an id sequence to text through the engine's detokenizer.
func (t *clientTokenizer) Decode(ctx context.Context, ids []int, skipSpecialTokens bool) (string, error) {
	return (*Client)(t).detokenize(ctx, ids, skipSpecialTokens)
}

// GetStats returns current client statistics.
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		Model:           c.model.Model,
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}

type generateRequest struct {
	RequestID       string         `json:"request_id"`
	Encoder         encoderPayload `json:"encoder"`
	DecoderTokenIDs []int          `json:"decoder_token_ids"`
	Sampling        SamplingParams `json:"sampling"`
}

type encoderPayload struct {
	Audio      string `json:"audio"` // base64 little-endian float32 PCM
	SampleRate int    `json:"sample_rate"`
}

type detokenizeRequest struct {
	TokenIDs          []int `json:"token_ids"`
	SkipSpecialTokens bool  `json:"skip_special_tokens"`
}

type detokenizeResponse struct {
	Text string `json:"text"`
}

// encodePCM serializes float32 samples as base64 little-endian bytes.
func encodePCM(samples []float32) string {
	raw := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(s))
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func (c *Client) detokenize(ctx context.Context, ids []int, skipSpecialTokens bool) (string, error) {
	var resp detokenizeResponse
	err := c.postJSON(ctx, "/v1/detokenize", detokenizeRequest{
		TokenIDs:          ids,
		SkipSpecialTokens: skipSpecialTokens,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("detokenize request failed: %w", err)
	}

	return resp.Text, nil
}

func (c *Client) fetchModelInfo(ctx context.Context) (*modelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimSuffix(c.config.Endpoint, "/")+"/v1/models/info", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	c.setHeaders(httpReq)

	var info modelInfo
	if err := c.do(httpReq, &info); err != nil {
		return nil, err
	}

	return &info, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimSuffix(c.config.Endpoint, "/")+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	return c.do(httpReq, out)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "whisper-transcribe-service/1.0")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP error %d: %s", resp.StatusCode, strconv.Quote(string(respBody)))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response JSON: %w", err)
	}

	return nil
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) recordSuccess(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.successRequests++

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}
