// Package codec talks to the two external model endpoints a synthesis run
// depends on: the completion server that samples codec tokens for a text
// prompt, and the embedding server that maps codec codes to per-frame
// spectral embeddings.
package codec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Codec token range in the completion model's vocabulary. Tokens inside the
// range encode audio; everything else (text, markers) is discarded before
// rebasing to zero.
const (
	codeTokenMin    = 151672
	codeTokenMax    = 155772
	codeTokenOffset = 151672
)

// CompletionClient samples codec tokens from the language-model server.
type CompletionClient struct {
	endpoint string
	client   *http.Client
	nPredict int
	topK     int
	seed     int
}

type CompletionOption func(*CompletionClient)

func WithNPredict(n int) CompletionOption { return func(c *CompletionClient) { c.nPredict = n } }
func WithTopK(k int) CompletionOption     { return func(c *CompletionClient) { c.topK = k } }
func WithSeed(s int) CompletionOption     { return func(c *CompletionClient) { c.seed = s } }
func WithTimeout(d time.Duration) CompletionOption {
	return func(c *CompletionClient) { c.client.Timeout = d }
}

func NewCompletionClient(endpoint string, opts ...CompletionOption) *CompletionClient {
	c := &CompletionClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 120 * time.Second},
		nPredict: 1024,
		topK:     16,
		seed:     1003,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type completionRequest struct {
	Prompt       []any    `json:"prompt"`
	NPredict     int      `json:"n_predict"`
	CachePrompt  bool     `json:"cache_prompt"`
	ReturnTokens bool     `json:"return_tokens"`
	Samplers     []string `json:"samplers"`
	TopK         int      `json:"top_k"`
	Seed         int      `json:"seed"`
}

type completionResponse struct {
	Tokens []int `json:"tokens"`
}

// Complete sends the prompt for text, optionally followed by a pre-tokenized
// voice suffix, and returns the sampled token IDs.
func (c *CompletionClient) Complete(ctx context.Context, text string, voice *Voice) ([]int, error) {
	prompt := []any{BuildPrompt(text)}
	if voice != nil {
		for _, t := range voice.Tokens {
			prompt = append(prompt, t)
		}
	}

	payload := completionRequest{
		Prompt:       prompt,
		NPredict:     c.nPredict,
		CachePrompt:  true,
		ReturnTokens: true,
		Samplers:     []string{"top_k"},
		TopK:         c.topK,
		Seed:         c.seed,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/completion", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("completion server returned status %s", resp.Status)
	}

	var decoded completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode completion response: %w", err)
	}
	return decoded.Tokens, nil
}

// ExtractCodes keeps the codec tokens from a sampled sequence and rebases
// them to zero.
func ExtractCodes(tokens []int) []int {
	codes := make([]int, 0, len(tokens))
	for _, t := range tokens {
		if t >= codeTokenMin && t <= codeTokenMax {
			codes = append(codes, t-codeTokenOffset)
		}
	}
	return codes
}

// EmbeddingClient maps codec codes to the flat spectral embedding matrix the
// vocoder consumes.
type EmbeddingClient struct {
	endpoint string
	client   *http.Client
}

func NewEmbeddingClient(endpoint string) *EmbeddingClient {
	return &EmbeddingClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

type embeddingRequest struct {
	Input []int `json:"input"`
}

type embeddingResponse struct {
	Embedding [][]float32 `json:"embedding"`
}

// Embed returns the row-major embedding matrix for codes, flattened, along
// with its dimensions.
func (c *EmbeddingClient) Embed(ctx context.Context, codes []int) ([]float32, int, int, error) {
	if len(codes) == 0 {
		return nil, 0, 0, fmt.Errorf("no codec codes to embed")
	}

	body, err := json.Marshal(embeddingRequest{Input: codes})
	if err != nil {
		return nil, 0, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, 0, 0, fmt.Errorf("embedding server returned status %s", resp.Status)
	}

	var decoded []embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, 0, 0, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(decoded) == 0 || len(decoded[0].Embedding) == 0 {
		return nil, 0, 0, fmt.Errorf("embedding response is empty")
	}

	matrix := decoded[0].Embedding
	nCodes := len(matrix)
	nEmbd := len(matrix[0])
	flat := make([]float32, 0, nCodes*nEmbd)
	for i, row := range matrix {
		if len(row) != nEmbd {
			return nil, 0, 0, fmt.Errorf("embedding row %d has width %d, want %d", i, len(row), nEmbd)
		}
		flat = append(flat, row...)
	}
	return flat, nCodes, nEmbd, nil
}
