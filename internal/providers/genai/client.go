// Package genai is a lightweight facade over the Gemini REST API so that
// provider adapters can focus on translating domain requests to API calls.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelsmith/internal/infra"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client talks to the Gemini generateContent and long-running operation
// endpoints. Video generation is asynchronous on the provider side; the
// client polls the returned operation until it is done.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("genai: base url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &Client{
		apiKey:     opts.APIKey,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		model:      model,
		httpClient: httpClient,
		logger:     opts.Logger,
	}, nil
}

// Model returns the configured default model name.
func (c *Client) Model() string { return c.model }

// TextRequest asks for a single text completion.
type TextRequest struct {
	Prompt    string
	Model     string
	RequestID string
}

// ImageRequest asks for one generated image.
type ImageRequest struct {
	Prompt      string
	Model       string
	AspectRatio string
	RequestID   string
}

// VideoRequest asks for one generated video clip.
type VideoRequest struct {
	Prompt      string
	Model       string
	AspectRatio string
	RequestID   string
}

// Artifact is the normalized representation of one generated output.
type Artifact struct {
	URI    string
	Format string
	Text   string
}

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts,omitempty"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
	FileData   *fileData   `json:"fileData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type fileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri,omitempty"`
}

type generationConfig struct {
	CandidateCount int    `json:"candidateCount,omitempty"`
	AspectRatio    string `json:"aspectRatio,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type operationResponse struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Response *struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response,omitempty"`
}

// APIError carries the provider's HTTP status so adapters can classify it.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("genai: status %d: %s", e.Status, e.Message)
}

// GenerateText runs a synchronous text completion.
func (c *Client) GenerateText(ctx context.Context, req TextRequest) (*Artifact, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	payload := generateContentRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: req.Prompt}}}},
	}
	var resp generateContentResponse
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)
	if err := c.post(ctx, endpoint, payload, &resp); err != nil {
		return nil, err
	}
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.Text != "" {
				return &Artifact{Text: p.Text, Format: "text/plain"}, nil
			}
		}
	}
	return nil, &APIError{Status: http.StatusBadGateway, Message: "empty candidates"}
}

// GenerateImage runs a synchronous image generation and returns the file
// reference the API uploaded the result to.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (*Artifact, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	payload := generateContentRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: req.Prompt}}}},
		GenerationConfig: &generationConfig{CandidateCount: 1, AspectRatio: req.AspectRatio},
	}
	var resp generateContentResponse
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)
	if err := c.post(ctx, endpoint, payload, &resp); err != nil {
		return nil, err
	}
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.FileData != nil && p.FileData.FileURI != "" {
				return &Artifact{URI: p.FileData.FileURI, Format: p.FileData.MimeType}, nil
			}
			if p.InlineData != nil && p.InlineData.Data != "" {
				return &Artifact{URI: "data:" + p.InlineData.MimeType, Format: p.InlineData.MimeType}, nil
			}
		}
	}
	return nil, &APIError{Status: http.StatusBadGateway, Message: "no image in response"}
}

// GenerateVideo starts a long-running video generation and polls the
// operation until done or ctx expires.
func (c *Client) GenerateVideo(ctx context.Context, req VideoRequest) (*Artifact, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	payload := map[string]any{
		"instances": []map[string]any{{"prompt": req.Prompt}},
		"parameters": map[string]any{
			"aspectRatio": req.AspectRatio,
		},
	}
	var op operationResponse
	endpoint := fmt.Sprintf("%s/models/%s:predictLongRunning", c.baseURL, model)
	if err := c.post(ctx, endpoint, payload, &op); err != nil {
		return nil, err
	}
	return c.awaitVideo(ctx, op)
}

func (c *Client) awaitVideo(ctx context.Context, op operationResponse) (*Artifact, error) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for !op.Done {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		endpoint := fmt.Sprintf("%s/%s", c.baseURL, strings.TrimPrefix(op.Name, "/"))
		if err := c.get(ctx, endpoint, &op); err != nil {
			return nil, err
		}
	}
	if op.Error != nil {
		return nil, &APIError{Status: op.Error.Code, Message: op.Error.Message}
	}
	if op.Response != nil {
		samples := op.Response.GenerateVideoResponse.GeneratedSamples
		if len(samples) > 0 && samples[0].Video.URI != "" {
			return &Artifact{URI: samples[0].Video.URI, Format: "video/mp4"}, nil
		}
	}
	return nil, &APIError{Status: http.StatusBadGateway, Message: "operation finished without video"}
}

func (c *Client) post(ctx context.Context, endpoint string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("genai: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("genai: build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("genai: build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-goog-api-key", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Status: http.StatusServiceUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return &APIError{Status: http.StatusServiceUnavailable, Message: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if c.logger != nil {
			c.logger.Warn().Int("status", resp.StatusCode).Str("endpoint", req.URL.Path).Msg("genai: request failed")
		}
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("genai: decode response: %w", err)
	}
	return nil
}
