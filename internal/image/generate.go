package image

import "context"

// Request is either TextToImage or ImageToImage.
type Request interface {
	isRequest()
}

type TextToImage struct {
	Prompt string `json:"prompt"`
}

// ImageToImage steers generation with a reference image. Reference is either the image file
// itself or a directory, in which case its lexicographically first regular, non-hidden file is
// used.
type ImageToImage struct {
	Prompt    string `json:"prompt"`
	Reference string `json:"reference"`
}

func (TextToImage) isRequest()  {}
func (ImageToImage) isRequest() {}

type Generator interface {
	Generate(context.Context, Request) (*Result, error)
}

type Result struct {
	Image        []byte
	Format       string
	Seed         uint32
	FinishReason string
	SavedPath    string
}

func (r *Result) Message() string {
	if r.SavedPath != "" {
		return "Image saved to " + r.SavedPath
	}
	return "Image generated successfully"
}

// Params are the generation settings sent with every request.
type Params struct {
	CFGScale           float64
	ClipGuidancePreset string
	Width              int
	Height             int
	Sampler            string
	Samples            int
	Steps              int
	PromptWeight       float64
	ImageStrength      float64
	InitImageMode      string
}

func DefaultParams() Params {
	return Params{
		CFGScale:           7,
		ClipGuidancePreset: "FAST_BLUE",
		Width:              1024,
		Height:             1024,
		Sampler:            "K_DPM_2_ANCESTRAL",
		Samples:            1,
		Steps:              30,
		PromptWeight:       1,
		ImageStrength:      0.35,
		InitImageMode:      "IMAGE_STRENGTH",
	}
}
