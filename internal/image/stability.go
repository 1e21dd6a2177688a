package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	stdimage "image"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dmorgan81/sdgen/internal/log"
	"github.com/dmorgan81/sdgen/internal/store"
	"github.com/samber/lo"
)

const (
	DefaultBaseURL  = "https://api.stability.ai"
	DefaultEngine   = "stable-diffusion-xl-1024-v1-0"
	DefaultFilename = "output.png"
)

type Config struct {
	APIKey  string
	BaseURL string
	Engine  string

	// OutputDir enables saving to the local filesystem unless WithUploader is given.
	OutputDir      string
	OutputFilename string

	// Timeout bounds each outbound request. Zero leaves it to ctx and the http.Client.
	Timeout time.Duration
}

// LogValue keeps the API key out of logs.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("base_url", c.BaseURL),
		slog.String("engine", c.Engine),
		slog.String("output_dir", c.OutputDir),
		slog.String("output_filename", c.OutputFilename),
		slog.Duration("timeout", c.Timeout),
	)
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

func WithParams(params Params) Option {
	return func(c *Client) {
		c.params = params
	}
}

// WithUploader replaces the filesystem store implied by Config.OutputDir.
func WithUploader(uploader store.Uploader) Option {
	return func(c *Client) {
		c.uploader = uploader
	}
}

// Client talks to the Stability v1 generation API. It holds no state besides its
// configuration and is safe for concurrent use.
type Client struct {
	cfg      Config
	params   Params
	client   *http.Client
	uploader store.Uploader
}

var _ Generator = (*Client)(nil)

func New(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &ConfigurationError{Field: "api_key", Err: ErrMissingAPIKey}
	}

	cfg.BaseURL = strings.TrimRight(lo.Ternary(cfg.BaseURL != "", cfg.BaseURL, DefaultBaseURL), "/")
	cfg.Engine = lo.Ternary(cfg.Engine != "", cfg.Engine, DefaultEngine)
	cfg.OutputFilename = lo.Ternary(cfg.OutputFilename != "", cfg.OutputFilename, DefaultFilename)

	if u, err := url.Parse(cfg.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &ConfigurationError{Field: "base_url", Err: fmt.Errorf("not an absolute http(s) URL: %q", cfg.BaseURL)}
	}
	if name := cfg.OutputFilename; filepath.Base(name) != name || name == "." || name == ".." {
		return nil, &ConfigurationError{Field: "output_filename", Err: fmt.Errorf("must be a bare file name: %q", name)}
	}
	if cfg.Timeout < 0 {
		return nil, &ConfigurationError{Field: "timeout", Err: fmt.Errorf("must not be negative: %s", cfg.Timeout)}
	}

	c := &Client{
		cfg:    cfg,
		params: DefaultParams(),
		client: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.uploader == nil && cfg.OutputDir != "" {
		c.uploader = &store.FileUploader{Dir: cfg.OutputDir}
	}
	return c, nil
}

func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	switch r := req.(type) {
	case TextToImage:
		return c.GenerateTextToImage(ctx, r.Prompt)
	case ImageToImage:
		return c.GenerateImageToImage(ctx, r.Prompt, r.Reference)
	default:
		return nil, &InputError{Err: fmt.Errorf("unsupported request %T", req)}
	}
}

type textPrompt struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

type textToImageRequest struct {
	CFGScale           float64      `json:"cfg_scale"`
	ClipGuidancePreset string       `json:"clip_guidance_preset"`
	Height             int          `json:"height"`
	Width              int          `json:"width"`
	Sampler            string       `json:"sampler"`
	Samples            int          `json:"samples"`
	Steps              int          `json:"steps"`
	TextPrompts        []textPrompt `json:"text_prompts"`
}

func (c *Client) GenerateTextToImage(ctx context.Context, prompt string) (*Result, error) {
	if err := validatePrompt(prompt); err != nil {
		return nil, err
	}

	log := c.logger(ctx, "text-to-image")
	log.Info("generating image", "prompt", prompt)

	body, err := json.Marshal(textToImageRequest{
		CFGScale:           c.params.CFGScale,
		ClipGuidancePreset: c.params.ClipGuidancePreset,
		Height:             c.params.Height,
		Width:              c.params.Width,
		Sampler:            c.params.Sampler,
		Samples:            c.params.Samples,
		Steps:              c.params.Steps,
		TextPrompts:        []textPrompt{{Text: prompt, Weight: c.params.PromptWeight}},
	})
	if err != nil {
		return nil, err
	}

	status, resp, err := c.post(ctx, "text-to-image", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return c.decodeAndMaybeSave(ctx, log, status, resp)
}

func (c *Client) GenerateImageToImage(ctx context.Context, prompt, reference string) (*Result, error) {
	if err := validatePrompt(prompt); err != nil {
		return nil, err
	}

	path, err := selectReference(reference)
	if err != nil {
		return nil, err
	}

	log := c.logger(ctx, "image-to-image")
	log.Info("generating image", "prompt", prompt, "reference", path)

	initImage, err := loadReference(path, c.params.Width, c.params.Height)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("init_image", "init_image.png")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(initImage); err != nil {
		return nil, err
	}

	fields := [][2]string{
		{"init_image_mode", c.params.InitImageMode},
		{"image_strength", formatFloat(c.params.ImageStrength)},
		{"text_prompts[0][text]", prompt},
		{"cfg_scale", formatFloat(c.params.CFGScale)},
		{"samples", strconv.Itoa(c.params.Samples)},
		{"steps", strconv.Itoa(c.params.Steps)},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	status, resp, err := c.post(ctx, "image-to-image", w.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}
	return c.decodeAndMaybeSave(ctx, log, status, resp)
}

func (c *Client) post(ctx context.Context, mode, contentType string, body io.Reader) (int, []byte, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	endpoint := fmt.Sprintf("%s/v1/generation/%s/%s", c.cfg.BaseURL, url.PathEscape(c.cfg.Engine), mode)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s request failed: %w", mode, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading %s response: %w", mode, err)
	}
	return resp.StatusCode, data, nil
}

type artifact struct {
	Base64       string `json:"base64"`
	Seed         uint32 `json:"seed"`
	FinishReason string `json:"finishReason"`
}

type generationResponse struct {
	Artifacts []artifact `json:"artifacts"`
}

func (c *Client) decodeAndMaybeSave(ctx context.Context, log *slog.Logger, status int, body []byte) (*Result, error) {
	if status != http.StatusOK {
		log.Error("failed to generate image", "status", status, "body", string(body))
		return nil, &GenerationError{StatusCode: status, Body: string(body)}
	}

	var resp generationResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &DecodingError{Err: fmt.Errorf("parsing response: %w", err)}
	}
	if len(resp.Artifacts) == 0 {
		return nil, &DecodingError{Err: errors.New("response contains no artifacts")}
	}

	a := resp.Artifacts[0]
	data, err := base64.StdEncoding.DecodeString(a.Base64)
	if err != nil {
		return nil, &DecodingError{Err: fmt.Errorf("decoding base64 artifact: %w", err)}
	}
	if len(data) == 0 {
		return nil, &DecodingError{Err: errors.New("artifact is empty")}
	}
	_, format, err := stdimage.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodingError{Err: fmt.Errorf("decoding image: %w", err)}
	}

	result := &Result{
		Image:        data,
		Format:       format,
		Seed:         a.Seed,
		FinishReason: a.FinishReason,
	}
	log.Info("received image", "format", format, "seed", a.Seed, "bytes", len(data))

	if c.uploader == nil {
		return result, nil
	}

	path, err := c.uploader.Upload(ctx, store.UploadParams{
		Name:        c.cfg.OutputFilename,
		Data:        data,
		ContentType: "image/" + format,
		Metadata: map[string]string{
			"engine":        c.cfg.Engine,
			"seed":          strconv.FormatUint(uint64(a.Seed), 10),
			"finish-reason": a.FinishReason,
		},
	})
	if err != nil {
		log.Error("failed to save image", "path", path, "error", err)
		return result, &IOError{Path: path, Err: err}
	}
	result.SavedPath = path
	return result, nil
}

func (c *Client) logger(ctx context.Context, mode string) *slog.Logger {
	return log.FromContextOrDiscard(ctx).WithGroup("stability").With("engine", c.cfg.Engine, "mode", mode)
}

func validatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return &InputError{Err: ErrEmptyPrompt}
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
