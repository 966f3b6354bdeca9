package generator

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rs/zerolog/log"
)

// OpenAIImageGenerator implements ImageGenerator against the Images Edit
// endpoint, authenticating with the API key it was constructed with.
type OpenAIImageGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIImageGenerator builds an adapter that authenticates with apiKey. An
// empty key produces a client that will fail on first call; callers should
// validate apiKey != "" before constructing one for a real run.
func NewOpenAIImageGenerator(apiKey, model string) *OpenAIImageGenerator {
	if model == "" {
		model = "gpt-image-1"
	}
	return &OpenAIImageGenerator{client: openai.NewClient(apiKey), model: model}
}

func (g *OpenAIImageGenerator) Describe() string {
	return "openai:" + g.model
}

func (g *OpenAIImageGenerator) Close() error { return nil }

// Generate calls the Images Edit endpoint with the anchor (and, when
// present, the previous frame) as reference images and the Semantic
// Interleaving prompt as the edit instruction.
func (g *OpenAIImageGenerator) Generate(ctx context.Context, req Request) (*Result, *GeneratorError) {
	start := time.Now()

	imageReq := openai.ImageEditRequest{
		Image:   []io.Reader{bytes.NewReader(req.AnchorBytes)},
		Prompt:  req.PromptText,
		Model:   g.model,
		N:       1,
		Size:    openai.CreateImageSize1024x1024,
	}
	if req.PrevFrameBytes != nil {
		imageReq.Image = append(imageReq.Image, bytes.NewReader(req.PrevFrameBytes))
	}

	resp, err := g.client.CreateEditImage(ctx, imageReq)
	latency := time.Since(start)

	if err != nil {
		log.Debug().Err(err).Dur("latency", latency).Msg("generator call failed")
		return nil, classifyError(err)
	}
	if len(resp.Data) == 0 {
		return nil, &GeneratorError{Kind: ErrInvalidResponse, Message: "generator returned no images"}
	}

	log.Debug().Dur("latency", latency).Msg("generator call succeeded")

	png, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, &GeneratorError{Kind: ErrInvalidResponse, Message: "malformed base64 image payload", Cause: err}
	}

	return &Result{
		PNGBytes:     png,
		SamplingUsed: req.Sampling,
	}, nil
}

func classifyError(err error) *GeneratorError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429:
			return &GeneratorError{Kind: ErrRateLimited, Message: apiErr.Message, Cause: err}
		case 503, 502, 500:
			return &GeneratorError{Kind: ErrUnavailable, Message: apiErr.Message, Cause: err}
		}
		return &GeneratorError{Kind: ErrInvalidResponse, Message: apiErr.Message, Cause: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &GeneratorError{Kind: ErrTimeout, Message: "generator call timed out", Cause: err}
	}
	return &GeneratorError{Kind: ErrUnavailable, Message: err.Error(), Cause: err}
}
