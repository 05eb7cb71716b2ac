package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"moltd/internal/daemon"
)

// S3Config holds S3 connection settings. Endpoint is optional; set it for
// S3-compatible services (MinIO and friends).
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// S3Archive stores snapshots in an S3 bucket. Payloads pass through the
// configured Encryptor before upload.
type S3Archive struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
	enc      daemon.Encryptor
}

var _ daemon.Archive = (*S3Archive)(nil)

// NewS3Archive creates an S3 archive backend. Static credentials are used
// when provided; otherwise the default AWS credential chain applies.
func NewS3Archive(ctx context.Context, cfg S3Config, enc daemon.Encryptor) (*S3Archive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 archive requires a bucket")
	}
	if enc == nil {
		enc = passthrough{}
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	if cfg.Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL:               cfg.Endpoint,
					HostnameImmutable: true,
				}, nil
			},
		)
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.Endpoint != ""
	})

	return &S3Archive{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		enc:      enc,
	}, nil
}

func (a *S3Archive) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	var buf bytes.Buffer
	if err := a.enc.Encrypt(r, &buf); err != nil {
		return fmt.Errorf("encrypting archive payload: %w", err)
	}

	key := path.Join(a.prefix, name)
	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   &buf,
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

// Validate checks that the bucket exists and is reachable.
func (a *S3Archive) Validate(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(a.bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket %s not reachable: %w", a.bucket, err)
	}
	return nil
}
