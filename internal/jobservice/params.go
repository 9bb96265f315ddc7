package jobservice

import (
	"image"
	"math/rand/v2"

	"easel/internal/config"
)

// Params are the generation settings sent with a submission.
type Params struct {
	PositivePrompt string  `json:"positive_prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Model          string  `json:"model,omitempty"`
	Steps          int     `json:"steps"`
	CFGScale       float64 `json:"cfg_scale"`
	Scheduler      string  `json:"scheduler"`
	Strength       float64 `json:"strength"`
	// Seed is drawn at submission time when nil.
	Seed   *int64 `json:"seed,omitempty"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// DefaultParams builds parameters from the configured generation defaults.
func DefaultParams(cfg *config.Config) Params {
	p := Params{Steps: 50, CFGScale: 7.5, Scheduler: "euler", Strength: 0.75}
	if cfg == nil {
		return p
	}
	gen := cfg.Generation
	p.Model = gen.Model
	if gen.Steps > 0 {
		p.Steps = gen.Steps
	}
	if gen.CFGScale > 0 {
		p.CFGScale = gen.CFGScale
	}
	if gen.Scheduler != "" {
		p.Scheduler = gen.Scheduler
	}
	p.Strength = gen.Img2ImgStrength
	if gen.Seed != nil {
		seed := *gen.Seed
		p.Seed = &seed
	}
	p.Width = cfg.Canvas.Width
	p.Height = cfg.Canvas.Height
	return p
}

func (p Params) withSeed() Params {
	if p.Seed == nil {
		seed := int64(rand.Uint32())
		p.Seed = &seed
	}
	return p
}

// Submission is one job request built from the canvas.
type Submission struct {
	// Image is the flattened raster composite.
	Image image.Image
	// Mask is the inpaint mask composite, nil when the document has none.
	Mask   image.Image
	Params Params
	// Destination is "canvas" or "gallery" and is echoed back on every event.
	Destination string
	SessionID   string
}
