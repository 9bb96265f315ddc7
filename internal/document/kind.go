package document

import (
	"fmt"
	"image/color"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Kind identifies the layer variant.
type Kind string

const (
	KindRaster           Kind = "raster"
	KindRegionalGuidance Kind = "regional_guidance"
	KindControlAdapter   Kind = "control_adapter"
	KindInitialImage     Kind = "initial_image"
	KindInpaintMask      Kind = "inpaint_mask"
	KindReferenceImage   Kind = "reference_image"
)

var allKinds = []Kind{
	KindRaster,
	KindRegionalGuidance,
	KindControlAdapter,
	KindInitialImage,
	KindInpaintMask,
	KindReferenceImage,
}

// Kinds lists every layer kind in declaration order.
func Kinds() []Kind {
	return append([]Kind(nil), allKinds...)
}

// ParseKind accepts the wire name of a kind, case-insensitively, with dashes
// or underscores.
func ParseKind(value string) (Kind, error) {
	normalized := Kind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), "-", "_"))
	if normalized.Valid() {
		return normalized, nil
	}
	return "", fmt.Errorf("unknown layer kind %q", value)
}

func (k Kind) Valid() bool {
	for _, candidate := range allKinds {
		if k == candidate {
			return true
		}
	}
	return false
}

// Resettable reports whether ResetLayer has semantics for this kind.
func (k Kind) Resettable() bool {
	return k == KindRaster || k == KindRegionalGuidance
}

// Paintable reports whether brush and eraser strokes apply to this kind.
func (k Kind) Paintable() bool {
	switch k {
	case KindRaster, KindRegionalGuidance, KindInpaintMask:
		return true
	default:
		return false
	}
}

// DisplayName is the human label, e.g. "Regional Guidance".
func (k Kind) DisplayName() string {
	return cases.Title(language.English).String(strings.ReplaceAll(string(k), "_", " "))
}

// ImageRef names an image held by the generation service.
type ImageRef struct {
	Name   string `json:"name"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Config is the kind-specific payload of a layer. The set of implementations
// is closed; switch on the concrete type.
type Config interface {
	Kind() Kind
	clone() Config
}

type RasterConfig struct {
	Opacity float64 `json:"opacity"`
}

type RegionalGuidanceConfig struct {
	PositivePrompt string      `json:"positive_prompt,omitempty"`
	NegativePrompt string      `json:"negative_prompt,omitempty"`
	MaskColor      color.NRGBA `json:"mask_color"`
	AutoNegative   bool        `json:"auto_negative"`
}

type ControlAdapterConfig struct {
	Model     string    `json:"model,omitempty"`
	Weight    float64   `json:"weight"`
	BeginStep float64   `json:"begin_step"`
	EndStep   float64   `json:"end_step"`
	Image     *ImageRef `json:"image,omitempty"`
}

type InitialImageConfig struct {
	Image    *ImageRef `json:"image,omitempty"`
	Strength float64   `json:"strength"`
}

type InpaintMaskConfig struct {
	MaskColor color.NRGBA `json:"mask_color"`
}

type ReferenceImageConfig struct {
	Image  *ImageRef `json:"image,omitempty"`
	Model  string    `json:"model,omitempty"`
	Weight float64   `json:"weight"`
	Method string    `json:"method"`
}

func (RasterConfig) Kind() Kind           { return KindRaster }
func (RegionalGuidanceConfig) Kind() Kind { return KindRegionalGuidance }
func (ControlAdapterConfig) Kind() Kind   { return KindControlAdapter }
func (InitialImageConfig) Kind() Kind     { return KindInitialImage }
func (InpaintMaskConfig) Kind() Kind      { return KindInpaintMask }
func (ReferenceImageConfig) Kind() Kind   { return KindReferenceImage }

func (c RasterConfig) clone() Config           { return c }
func (c RegionalGuidanceConfig) clone() Config { return c }
func (c InpaintMaskConfig) clone() Config      { return c }

func (c ControlAdapterConfig) clone() Config {
	c.Image = cloneRef(c.Image)
	return c
}

func (c InitialImageConfig) clone() Config {
	c.Image = cloneRef(c.Image)
	return c
}

func (c ReferenceImageConfig) clone() Config {
	c.Image = cloneRef(c.Image)
	return c
}

func cloneRef(ref *ImageRef) *ImageRef {
	if ref == nil {
		return nil
	}
	cp := *ref
	return &cp
}

var defaultInpaintColor = color.NRGBA{R: 0xe0, G: 0x2e, B: 0x8c, A: 0xff}

// maskPalette is cycled through as regional guidance layers are added.
var maskPalette = []color.NRGBA{
	{R: 0x79, G: 0x6c, B: 0xf2, A: 0xff},
	{R: 0x2a, G: 0xbf, B: 0x8a, A: 0xff},
	{R: 0xf2, G: 0xa1, B: 0x3b, A: 0xff},
	{R: 0x3b, G: 0x9c, B: 0xf2, A: 0xff},
	{R: 0xf2, G: 0x5c, B: 0x5c, A: 0xff},
	{R: 0xc8, G: 0xd9, B: 0x3a, A: 0xff},
}

// DefaultConfig returns the documented default payload for kind.
func DefaultConfig(kind Kind) Config {
	switch kind {
	case KindRaster:
		return RasterConfig{Opacity: 1}
	case KindRegionalGuidance:
		return RegionalGuidanceConfig{MaskColor: maskPalette[0], AutoNegative: false}
	case KindControlAdapter:
		return ControlAdapterConfig{Weight: 1, BeginStep: 0, EndStep: 1}
	case KindInitialImage:
		return InitialImageConfig{Strength: 0.75}
	case KindInpaintMask:
		return InpaintMaskConfig{MaskColor: defaultInpaintColor}
	case KindReferenceImage:
		return ReferenceImageConfig{Weight: 1, Method: "full"}
	default:
		return nil
	}
}
