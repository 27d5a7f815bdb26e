package gemini

import (
	"context"
	"errors"
	"fmt"

	"bananagen/internal/logger"

	"google.golang.org/genai"
)

// ErrNoImageBytes means the model answered without any inline image data.
// Callers treat it as transient and retry.
var ErrNoImageBytes = errors.New("no image bytes returned from API")

// Reference is the opaque remote handle for one uploaded reference image.
type Reference struct {
	Name     string
	URI      string
	MIMEType string
}

// Client adapts the genai SDK to the three operations the pipeline needs.
// All response shape-navigation stays inside this package; the rest of the
// system sees only (bytes, mime) pairs and opaque references.
type Client struct {
	client      *genai.Client
	model       string
	aspectRatio string
	log         *logger.Logger
}

func New(ctx context.Context, apiKey, model, aspectRatio string) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{
		client:      client,
		model:       model,
		aspectRatio: aspectRatio,
		log:         logger.New("GeminiClient"),
	}, nil
}

// Upload pushes one local file to the Files API and returns its handle.
func (c *Client) Upload(ctx context.Context, path string) (Reference, error) {
	c.log.LogDebugf("uploading reference file: %s", path)
	f, err := c.client.Files.UploadFromPath(ctx, path, nil)
	if err != nil {
		return Reference{}, fmt.Errorf("upload %s: %w", path, err)
	}
	return Reference{Name: f.Name, URI: f.URI, MIMEType: f.MIMEType}, nil
}

// Generate asks the image model for one picture grounded on the uploaded
// references, and returns the raw bytes exactly as the API produced them.
func (c *Client) Generate(ctx context.Context, prompt string, refs []Reference) ([]byte, string, error) {
	parts := make([]*genai.Part, 0, len(refs)+1)
	parts = append(parts, genai.NewPartFromText(prompt))
	for _, ref := range refs {
		parts = append(parts, genai.NewPartFromURI(ref.URI, ref.MIMEType))
	}
	return c.generate(ctx, parts)
}

// Edit sends one inline image with an instruction prompt, used by the
// background-cleanup job. Same response contract as Generate.
func (c *Client) Edit(ctx context.Context, prompt string, image []byte, mimeType string) ([]byte, string, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
		genai.NewPartFromBytes(image, mimeType),
	}
	return c.generate(ctx, parts)
}

func (c *Client) generate(ctx context.Context, parts []*genai.Part) ([]byte, string, error) {
	c.log.LogDebugf("calling generate_content: model=%s parts=%d aspect=%s", c.model, len(parts), c.aspectRatio)

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE"},
		ImageConfig:        &genai.ImageConfig{AspectRatio: c.aspectRatio},
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return nil, "", fmt.Errorf("generate_content: %w", err)
	}

	c.log.LogDebugf("generation response candidates: %d", len(resp.Candidates))
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mime := part.InlineData.MIMEType
				if mime == "" {
					mime = "image/png"
				}
				return part.InlineData.Data, mime, nil
			}
		}
	}
	return nil, "", ErrNoImageBytes
}
