package inject

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/dmorgan81/sdgen/internal/config"
	"github.com/dmorgan81/sdgen/internal/handler"
	"github.com/dmorgan81/sdgen/internal/image"
	"github.com/dmorgan81/sdgen/internal/log"
	"github.com/dmorgan81/sdgen/internal/param"
	"github.com/dmorgan81/sdgen/internal/store"
	"github.com/samber/do"
	"github.com/samber/lo"
)

const APIKeyName = "stability_api_key"

// Setup registers every provider lazily; AWS clients are only built when a configured
// feature needs them. A non-nil level is set from LOG_LEVEL once the configuration, including
// any .env file, has been loaded.
func Setup(ctx context.Context, level *slog.LevelVar, dotenv ...string) *do.Injector {
	logger := log.FromContextOrDiscard(ctx)

	injector := do.NewWithOpts(&do.InjectorOpts{
		Logf: func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		},
	})
	do.Provide[*config.Config](injector, func(i *do.Injector) (*config.Config, error) {
		cfg, err := config.Load(dotenv...)
		if err != nil {
			return nil, err
		}
		if level != nil {
			level.Set(log.ParseLevel(cfg.LogLevel))
		}
		return cfg, nil
	})
	do.Provide[aws.Config](injector, func(i *do.Injector) (aws.Config, error) {
		return awsconfig.LoadDefaultConfig(ctx)
	})
	do.Provide[*ssm.Client](injector, func(i *do.Injector) (*ssm.Client, error) {
		return ssm.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.Provide[*s3.Client](injector, func(i *do.Injector) (*s3.Client, error) {
		return s3.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.Provide[*cloudfront.Client](injector, func(i *do.Injector) (*cloudfront.Client, error) {
		return cloudfront.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.ProvideValue[*http.Client](injector, http.DefaultClient)

	do.Provide[param.Fetcher](injector, newFetcher)
	do.ProvideNamed[string](injector, APIKeyName, func(i *do.Injector) (string, error) {
		return fetchAPIKey(ctx, i)
	})

	do.Provide[image.Generator](injector, newGenerator)
	do.Provide[store.Invalidator](injector, func(i *do.Injector) (store.Invalidator, error) {
		return &store.CloudFrontInvalidator{
			Client:       do.MustInvoke[*cloudfront.Client](i),
			Distribution: do.MustInvoke[*config.Config](i).Distribution,
		}, nil
	})
	do.Provide[*handler.Handler](injector, handler.NewHandler)

	return injector
}

// ClientConfig maps process configuration onto the image client's configuration.
func ClientConfig(cfg *config.Config, apiKey string) image.Config {
	return image.Config{
		APIKey:         apiKey,
		BaseURL:        cfg.APIHost,
		Engine:         cfg.Engine,
		OutputDir:      cfg.OutputDir,
		OutputFilename: cfg.OutputFilename,
		Timeout:        cfg.RequestTimeout,
	}
}

func newFetcher(i *do.Injector) (param.Fetcher, error) {
	cfg, err := do.Invoke[*config.Config](i)
	if err != nil {
		return nil, err
	}
	if cfg.APIKeyParam != "" {
		return param.NewParameterStoreFetcher(i)
	}
	return &param.EnvFetcher{Aliases: map[string][]string{
		config.APIKeyEnv: {config.LegacyAPIKeyEnv},
	}}, nil
}

// fetchAPIKey yields an empty key when none is configured so that image.New reports it.
func fetchAPIKey(ctx context.Context, i *do.Injector) (string, error) {
	cfg, err := do.Invoke[*config.Config](i)
	if err != nil {
		return "", err
	}
	fetcher, err := do.Invoke[param.Fetcher](i)
	if err != nil {
		return "", err
	}

	key, err := fetcher.Fetch(ctx, lo.Ternary(cfg.APIKeyParam != "", cfg.APIKeyParam, config.APIKeyEnv))
	if errors.Is(err, param.ErrNotFound) {
		return "", nil
	}
	return key, err
}

func newGenerator(i *do.Injector) (image.Generator, error) {
	cfg, err := do.Invoke[*config.Config](i)
	if err != nil {
		return nil, err
	}
	key, err := do.InvokeNamed[string](i, APIKeyName)
	if err != nil {
		return nil, err
	}
	opts, err := ClientOptions(i)
	if err != nil {
		return nil, err
	}
	return image.New(ClientConfig(cfg, key), opts...)
}

// ClientOptions carries the shared HTTP client and, when OUTPUT_BUCKET is set, the S3 uploader.
// Without a bucket the client falls back to saving under OutputDir.
func ClientOptions(i *do.Injector) ([]image.Option, error) {
	cfg, err := do.Invoke[*config.Config](i)
	if err != nil {
		return nil, err
	}
	client, err := do.Invoke[*http.Client](i)
	if err != nil {
		return nil, err
	}

	opts := []image.Option{image.WithHTTPClient(client)}
	if cfg.OutputBucket != "" {
		s3Client, err := do.Invoke[*s3.Client](i)
		if err != nil {
			return nil, err
		}
		opts = append(opts, image.WithUploader(&store.S3Uploader{
			Client: s3Client,
			Bucket: cfg.OutputBucket,
			Prefix: cfg.OutputPrefix,
		}))
	}
	return opts, nil
}
