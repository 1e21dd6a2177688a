package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dmorgan81/sdgen/internal/config"
	"github.com/dmorgan81/sdgen/internal/image"
	"github.com/dmorgan81/sdgen/internal/inject"
	"github.com/dmorgan81/sdgen/internal/log"
	"github.com/dmorgan81/sdgen/internal/store"
	"github.com/samber/do"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

var errNoDestination = errors.New("no output destination: set -out, OUTPUT_DIR or OUTPUT_BUCKET")

func main() {
	var (
		inputDir = flag.String("input-dir", "", "reference image file or directory; switches to image-to-image")
		outDir   = flag.String("out", "", "directory to save images to (overrides OUTPUT_DIR and OUTPUT_BUCKET)")
		filename = flag.String("filename", "", "output file name (overrides OUTPUT_FILENAME)")
		keepDir  = flag.String("keep-dir", os.TempDir(), "directory for images that could not be saved")
		parallel = flag.Int("parallel", 1, "maximum concurrent generations")
		timeout  = flag.Duration("timeout", 0, "per-request timeout (overrides REQUEST_TIMEOUT)")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] prompt [prompt...]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	prompts := flag.Args()
	if len(prompts) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	level := new(slog.LevelVar)
	level.Set(log.ParseLevel(os.Getenv("LOG_LEVEL")))
	logger := log.New(os.Stderr, level)
	ctx, stop := signal.NotifyContext(log.NewContext(context.Background(), logger), os.Interrupt, syscall.SIGTERM)
	defer stop()

	injector := inject.Setup(ctx, level)
	defer func() { _ = injector.Shutdown() }()

	cfg, err := do.Invoke[*config.Config](injector)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *outDir != "" {
		cfg.OutputDir = *outDir
		cfg.OutputBucket = ""
	}
	if *filename != "" {
		cfg.OutputFilename = *filename
	}
	if *timeout > 0 {
		cfg.RequestTimeout = *timeout
	}

	key, err := do.InvokeNamed[string](injector, inject.APIKeyName)
	if err != nil {
		logger.Error("failed to resolve api key", "error", err)
		os.Exit(1)
	}
	opts, err := inject.ClientOptions(injector)
	if err != nil {
		logger.Error("failed to set up client", "error", err)
		os.Exit(1)
	}

	b := batch{
		cfg:      inject.ClientConfig(cfg, key),
		opts:     opts,
		remote:   cfg.OutputBucket != "",
		inputDir: *inputDir,
		parallel: *parallel,
		keepDir:  *keepDir,
		stdout:   os.Stdout,
	}
	if err := b.run(ctx, prompts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// batch generates one image per prompt with independent clients sharing one configuration.
type batch struct {
	cfg  image.Config
	opts []image.Option
	// remote is set when opts carry an uploader, so cfg.OutputDir may be empty.
	remote   bool
	inputDir string
	parallel int
	keepDir  string
	stdout   io.Writer
}

func (b batch) run(ctx context.Context, prompts []string) error {
	if b.cfg.OutputDir == "" && !b.remote {
		return errNoDestination
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(b.parallel, 1))

	results := make([]string, len(prompts))
	for n, prompt := range prompts {
		n, prompt := n, prompt
		clientCfg := b.cfg
		if len(prompts) > 1 {
			clientCfg.OutputFilename = numbered(lo.Ternary(b.cfg.OutputFilename != "", b.cfg.OutputFilename, image.DefaultFilename), n)
		}

		g.Go(func() error {
			client, err := image.New(clientCfg, b.opts...)
			if err != nil {
				return err
			}

			var req image.Request = image.TextToImage{Prompt: prompt}
			if b.inputDir != "" {
				req = image.ImageToImage{Prompt: prompt, Reference: b.inputDir}
			}

			res, err := client.Generate(ctx, req)
			var ioErr *image.IOError
			if errors.As(err, &ioErr) && res != nil {
				kept, keepErr := b.keep(ctx, res, lo.Ternary(clientCfg.OutputFilename != "", clientCfg.OutputFilename, image.DefaultFilename))
				if keepErr != nil {
					return fmt.Errorf("prompt %d: %w", n+1, errors.Join(err, keepErr))
				}
				results[n] = fmt.Sprintf("Image kept at %s (save failed: %v)", kept, ioErr.Err)
				return fmt.Errorf("prompt %d: %w", n+1, err)
			}
			if err != nil {
				return fmt.Errorf("prompt %d: %w", n+1, err)
			}
			results[n] = res.Message()
			return nil
		})
	}

	err := g.Wait()
	for _, msg := range results {
		if msg != "" {
			fmt.Fprintln(b.stdout, msg)
		}
	}
	return err
}

// keep writes an image whose save failed under keepDir so the generation is not lost.
func (b batch) keep(ctx context.Context, res *image.Result, name string) (string, error) {
	u := &store.FileUploader{Dir: b.keepDir}
	return u.Upload(ctx, store.UploadParams{Name: name, Data: res.Image, ContentType: "image/" + res.Format})
}

// numbered turns output.png into output-2.png for the third prompt.
func numbered(name string, n int) string {
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), n, ext)
}
