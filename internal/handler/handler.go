package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/dmorgan81/sdgen/internal/config"
	"github.com/dmorgan81/sdgen/internal/image"
	"github.com/dmorgan81/sdgen/internal/log"
	"github.com/dmorgan81/sdgen/internal/store"
	"github.com/samber/do"
	"github.com/samber/lo"
)

const (
	ModeTextToImage  = "text-to-image"
	ModeImageToImage = "image-to-image"
)

// Input selects the generation mode explicitly or, when Mode is empty, by whether InputDir
// is set.
type Input struct {
	Mode     string `json:"mode,omitempty"`
	Prompt   string `json:"prompt"`
	InputDir string `json:"input_dir,omitempty"`
}

func (i Input) toRequest() (image.Request, error) {
	mode := lo.Ternary(i.Mode != "", i.Mode, lo.Ternary(i.InputDir != "", ModeImageToImage, ModeTextToImage))
	switch mode {
	case ModeTextToImage:
		return image.TextToImage{Prompt: i.Prompt}, nil
	case ModeImageToImage:
		return image.ImageToImage{Prompt: i.Prompt, Reference: i.InputDir}, nil
	default:
		return nil, &image.InputError{Err: fmt.Errorf("unknown mode %q", i.Mode)}
	}
}

type Output struct {
	Message   string `json:"message"`
	SavedPath string `json:"saved_path,omitempty"`
	SaveError string `json:"save_error,omitempty"`
	Image     string `json:"image,omitempty"`
	Format    string `json:"format"`
	Seed      uint32 `json:"seed"`
}

type Handler struct {
	generator   image.Generator
	invalidator store.Invalidator
	paths       []string
}

func NewHandler(i *do.Injector) (*Handler, error) {
	generator, err := do.Invoke[image.Generator](i)
	if err != nil {
		return nil, err
	}
	h := &Handler{generator: generator}

	cfg := do.MustInvoke[*config.Config](i)
	if cfg.OutputBucket != "" && cfg.Distribution != "" {
		h.invalidator = do.MustInvoke[store.Invalidator](i)
		h.paths = []string{"/" + cfg.OutputPrefix + cfg.OutputFilename}
	}
	return h, nil
}

func (h *Handler) Handle(ctx context.Context, input Input) (Output, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("Handler").With("input", input)
	log.Info("handling lambda invocation")

	req, err := input.toRequest()
	if err != nil {
		return Output{}, err
	}

	res, err := h.generator.Generate(ctx, req)
	var ioErr *image.IOError
	if err != nil && !errors.As(err, &ioErr) {
		return Output{}, err
	}

	out := Output{
		Message:   res.Message(),
		SavedPath: res.SavedPath,
		Format:    res.Format,
		Seed:      res.Seed,
	}
	if ioErr != nil {
		log.Warn("returning unsaved image", "error", ioErr)
		out.SaveError = ioErr.Error()
	}
	if out.SavedPath == "" {
		out.Image = base64.StdEncoding.EncodeToString(res.Image)
		return out, nil
	}

	if h.invalidator != nil {
		if err := h.invalidator.Invalidate(ctx, h.paths); err != nil {
			return Output{}, err
		}
	}
	return out, nil
}
