package manifest

import "github.com/seanwinslow28/spritegen/internal/domain"

// Builder assembles a domain.Manifest field-by-field. It exists for the CLI's
// "demo" scaffolding command, which constructs a starter manifest
// programmatically rather than parsing one off disk.
type Builder struct {
	m domain.Manifest
}

func New() *Builder { return &Builder{} }

func (b *Builder) Identity(character, move, version string, frameCount int, isLoop bool) *Builder {
	b.m.Identity = domain.ManifestIdentity{
		Character:  character,
		Move:       move,
		Version:    version,
		FrameCount: frameCount,
		IsLoop:     isLoop,
	}
	return b
}

func (b *Builder) Anchor(path string) *Builder {
	b.m.Inputs.Anchor = path
	return b
}

func (b *Builder) StyleRefs(paths ...string) *Builder {
	b.m.Inputs.StyleRefs = paths
	return b
}

func (b *Builder) Prompts(master, variation, lock, negative string) *Builder {
	b.m.Generator.Prompts = domain.ManifestPrompts{
		Master:    master,
		Variation: variation,
		Lock:      lock,
		Negative:  negative,
	}
	return b
}

func (b *Builder) Generator(backend, model string, seedPolicy domain.SeedPolicy, maxAttempts int) *Builder {
	b.m.Generator.Backend = backend
	b.m.Generator.Model = model
	b.m.Generator.Mode = "edit"
	b.m.Generator.SeedPolicy = seedPolicy
	b.m.Generator.MaxAttemptsPerFrame = maxAttempts
	return b
}

func (b *Builder) Canvas(generationSize, targetSize int) *Builder {
	b.m.Canvas.GenerationSize = generationSize
	b.m.Canvas.TargetSize = targetSize
	b.m.Canvas.DownsampleMethod = "nearest"
	return b
}

func (b *Builder) Thresholds(t domain.ManifestThresholds) *Builder {
	b.m.Auditor.Thresholds = t
	return b
}

func (b *Builder) PackerFlags(flags ...string) *Builder {
	b.m.Export.PackerFlags = flags
	return b
}

func (b *Builder) Build() domain.Manifest { return b.m }
