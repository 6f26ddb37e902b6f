package jina

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"filings-rag-be/pkg/embedding"
)

const defaultURL = "https://api.jina.ai/v1/embeddings"

type JinaProvider struct {
	apiKey  string
	baseURL string
	model   string
	dims    int
	client  *http.Client
}

var _ embedding.EmbeddingProvider = (*JinaProvider)(nil)

type embeddingRequest struct {
	Model string   `json:"model"`
	Task  string   `json:"task,omitempty"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewJinaProvider uses jina-embeddings-v2-base-en (768 dims) unless model is set.
func NewJinaProvider(apiKey, baseURL, model string, dims int) *JinaProvider {
	if baseURL == "" {
		baseURL = defaultURL
	}
	if model == "" {
		model = "jina-embeddings-v2-base-en"
	}
	if dims <= 0 {
		dims = 768
	}
	return &JinaProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		dims:    dims,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *JinaProvider) Dimensions() int { return p.dims }

func (p *JinaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	data, err := json.Marshal(embeddingRequest{Model: p.model, Input: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jina api error (status %d): %s", resp.StatusCode, string(raw))
	}

	var out embeddingResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("jina api returned error: %s", out.Error.Message)
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("empty embeddings from jina api")
	}
	return embedding.Normalize(out.Data[0].Embedding), nil
}
