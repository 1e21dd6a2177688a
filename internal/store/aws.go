package store

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmorgan81/sdgen/internal/log"
	"github.com/samber/lo"
)

type S3Uploader struct {
	Client *s3.Client
	Bucket string
	Prefix string
}

func (u *S3Uploader) Upload(ctx context.Context, params UploadParams) (string, error) {
	object := u.Prefix + params.Name
	log.FromContextOrDiscard(ctx).WithGroup("s3").Info("uploading",
		"bucket", u.Bucket,
		"object", object,
		"content-type", params.ContentType,
	)

	_, err := u.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(u.Bucket),
		Key:          aws.String(object),
		ContentType:  aws.String(params.ContentType),
		Body:         bytes.NewReader(params.Data),
		Metadata:     params.Metadata,
		StorageClass: s3types.StorageClassIntelligentTiering,
	})
	return fmt.Sprintf("s3://%s/%s", u.Bucket, object), err
}

// CloudFrontInvalidator drops cached copies of saved images so the distribution serves the
// newest one. Duplicate paths are collapsed and an empty batch is a no-op.
type CloudFrontInvalidator struct {
	Client       *cloudfront.Client
	Distribution string
}

func (i *CloudFrontInvalidator) Invalidate(ctx context.Context, paths []string) error {
	paths = lo.Uniq(lo.Filter(paths, func(p string, _ int) bool { return p != "" }))
	if len(paths) == 0 {
		return nil
	}

	log := log.FromContextOrDiscard(ctx).WithGroup("cloudfront").With("distribution", i.Distribution)
	log.Info("invalidating paths", "paths", paths)

	out, err := i.Client.CreateInvalidation(ctx, &cloudfront.CreateInvalidationInput{
		DistributionId: aws.String(i.Distribution),
		InvalidationBatch: &cftypes.InvalidationBatch{
			CallerReference: aws.String("sdgen-" + time.Now().UTC().Format("20060102150405.000000000")),
			Paths: &cftypes.Paths{
				Quantity: aws.Int32(int32(len(paths))),
				Items:    paths,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("invalidating %s: %w", i.Distribution, err)
	}
	if out.Invalidation != nil {
		log.Debug("invalidation created", "id", aws.ToString(out.Invalidation.Id))
	}
	return nil
}
