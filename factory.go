package spritegen

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/seanwinslow28/spritegen/internal/application/generator"
	"github.com/seanwinslow28/spritegen/internal/infrastructure/runindex"
)

// NewOpenAIGenerator builds the default ImageGenerator backend against the
// OpenAI Images Edit endpoint.
func NewOpenAIGenerator(apiKey, model string) ImageGenerator {
	return generator.NewOpenAIImageGenerator(apiKey, model)
}

// RunIndex re-exports the optional Postgres-backed run index.
type RunIndex = runindex.Index

// NewRunIndex opens the run index against dsn and ensures run_summaries
// exists. It is optional infrastructure: a Pipeline works without one.
func NewRunIndex(dsn string) (*RunIndex, error) {
	idx := runindex.New(dsn)
	if err := idx.InitSchema(context.Background()); err != nil {
		log.Error().Err(err).Msg("failed to initialize run index schema")
		return nil, err
	}
	return idx, nil
}
