// Package inference wraps the self-hosted model sidecar behind typed adapter
// methods. The sidecar owns model loading (weights live in its process for
// the lifetime of a worker); this client is the explicit handle the pipeline
// and search engine receive instead of any ambient global model cache.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

const defaultBaseURL = "http://localhost:8000"

// Client talks to the inference sidecar. All methods are stateless and safe
// for concurrent use.
type Client struct {
	baseURL      string
	embeddingDim int
	faceDim      int
	client       *http.Client
}

// NewClient creates an inference client. embeddingDim and faceDim are the
// expected vector dimensions; pass 0 to skip the dimension check.
func NewClient(baseURL string, embeddingDim, faceDim int) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		embeddingDim: embeddingDim,
		faceDim:      faceDim,
		client:       &http.Client{},
	}
}

type embeddingResponse struct {
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
}

type detectResponse struct {
	Objects []Detection `json:"objects"`
	Model   string      `json:"model"`
}

type ocrResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

type textRequest struct {
	Text string `json:"text"`
}

// postMultipartImage constructs a multipart form with the image data and
// posts it to the given endpoint, with an explicit Content-Type header based
// on magic byte detection.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.do(req)
}

// postJSON posts a JSON body to the given endpoint.
func (c *Client) postJSON(ctx context.Context, endpoint string, body any) ([]byte, error) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// DetectObjects runs object detection on an encoded image and returns all
// recognized instances, duplicates included.
func (c *Client) DetectObjects(ctx context.Context, imageData []byte) ([]Detection, error) {
	body, err := c.postMultipartImage(ctx, "/detect/objects", imageData)
	if err != nil {
		return nil, err
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if err := validateDetections(resp.Objects); err != nil {
		return nil, fmt.Errorf("invalid detection output: %w", err)
	}

	return resp.Objects, nil
}

// EmbedImage computes the semantic embedding for an encoded image.
func (c *Client) EmbedImage(ctx context.Context, imageData []byte) (*EmbeddingResult, error) {
	body, err := c.postMultipartImage(ctx, "/embed/image", imageData)
	if err != nil {
		return nil, err
	}
	return c.parseEmbedding(body)
}

// EmbedText computes the embedding for a text query in the same vector space
// as EmbedImage. Empty input is invalid.
func (c *Client) EmbedText(ctx context.Context, text string) (*EmbeddingResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("empty text query")
	}

	body, err := c.postJSON(ctx, "/embed/text", textRequest{Text: text})
	if err != nil {
		return nil, err
	}
	return c.parseEmbedding(body)
}

func (c *Client) parseEmbedding(body []byte) (*EmbeddingResult, error) {
	var resp embeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if err := validateEmbedding(resp.Embedding, c.embeddingDim); err != nil {
		return nil, fmt.Errorf("invalid embedding output: %w", err)
	}

	return &EmbeddingResult{
		Embedding:    resp.Embedding,
		ModelVersion: resp.Model,
		Dim:          len(resp.Embedding),
	}, nil
}

// ExtractText runs OCR on an encoded image. An image with no readable text
// yields an empty string, not an error.
func (c *Client) ExtractText(ctx context.Context, imageData []byte) (string, error) {
	body, err := c.postMultipartImage(ctx, "/ocr", imageData)
	if err != nil {
		return "", err
	}

	var resp ocrResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	return strings.TrimSpace(resp.Text), nil
}

// DetectFaces finds faces in an encoded image. An image with no faces yields
// an empty slice, not an error.
func (c *Client) DetectFaces(ctx context.Context, imageData []byte) ([]FaceDetection, error) {
	body, err := c.postMultipartImage(ctx, "/detect/faces", imageData)
	if err != nil {
		return nil, err
	}

	var resp faceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if err := validateFaces(resp.Faces, c.faceDim); err != nil {
		return nil, fmt.Errorf("invalid face output: %w", err)
	}

	return resp.Faces, nil
}

// detectMIMEType detects the MIME type from image data.
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// GIF: 47 49 46 38
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return "image/gif"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}
