// Package gemini describes report photos with Google's Gemini models.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/bangalorenow/incident-heatmap/internal/observability"
)

// Prompt is sent alongside the report photo.
const Prompt = "Give a short 2-3 line title and a concise 2-3 line description for this image, " +
	"suitable for reporting a public issue. Do not use introductory phrases."

// maxImageBytes caps the photo download; larger uploads are rejected by the web app anyway.
const maxImageBytes = 10 << 20

var errEmptyResponse = errors.New("gemini returned no text")

// generator is the subset of *genai.Models used by Client.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client implements domain.Describer by sending the report photo inline to a
// Gemini model.
type Client struct {
	models     generator
	model      string
	timeout    time.Duration
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Gemini client for the given model.
func NewClient(ctx context.Context, apiKey, model string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{
		models:     gc.Models,
		model:      model,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
		metrics:    metrics,
		logger:     logger,
	}, nil
}

// Describe downloads the image and returns the model's raw title and
// description text.
func (c *Client) Describe(ctx context.Context, imageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	text, err := c.describe(ctx, imageURL)
	c.metrics.DescribeAPIDuration.Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, errEmptyResponse):
		c.metrics.DescribeRequests.WithLabelValues("empty").Inc()
	case err != nil:
		c.metrics.DescribeRequests.WithLabelValues("error").Inc()
	default:
		c.metrics.DescribeRequests.WithLabelValues("success").Inc()
	}
	return text, err
}

func (c *Client) describe(ctx context.Context, imageURL string) (string, error) {
	data, mimeType, err := c.fetchImage(ctx, imageURL)
	if err != nil {
		return "", err
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(data, mimeType),
			genai.NewPartFromText(Prompt),
		}, genai.RoleUser),
	}

	resp, err := c.models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.2),
		MaxOutputTokens: 256,
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errEmptyResponse
	}
	c.logger.Debug("gemini description generated", "model", c.model, "chars", len(text))
	return text, nil
}

func (c *Client) fetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create image request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, "", fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}

	mimeType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, "", fmt.Errorf("unsupported image type %q", mimeType)
	}
	return data, mimeType, nil
}
