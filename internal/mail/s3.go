// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package mail

import (
	"bytes"
	"context"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/samber/oops"
)

// S3Config configures the S3 outbox transport. Endpoint may point at any
// S3-compatible store such as MinIO.
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// objectPutter is the subset of *s3.Client used by S3Mailer.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mailer drops each message as an .eml object into an outbox bucket for
// an external relay to pick up.
type S3Mailer struct {
	client objectPutter
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3Mailer builds an S3 client from cfg. Static credentials are used when
// an access key is set; otherwise the default AWS credential chain applies.
func NewS3Mailer(ctx context.Context, cfg S3Config) (*S3Mailer, error) {
	if cfg.Bucket == "" {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("field", "s3.bucket").Errorf("s3 bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, oops.Code("MAIL_CONFIG_INVALID").With("operation", "load aws config").Wrap(err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Mailer(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3Mailer(client objectPutter, bucket, prefix string) *S3Mailer {
	return &S3Mailer{client: client, bucket: bucket, prefix: prefix, now: time.Now}
}

// Send implements Mailer.
func (m *S3Mailer) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	now := m.now()
	raw, err := encode(msg, now)
	if err != nil {
		return err
	}
	key := path.Join(m.prefix, now.UTC().Format("2006/01/02"), uuid.NewString()+".eml")

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(raw),
		ContentType: aws.String("message/rfc822"),
		Metadata:    map[string]string{"to": msg.To},
	})
	if err != nil {
		return oops.Code("MAIL_SEND_FAILED").
			With("transport", TransportS3).
			With("bucket", m.bucket).
			With("key", key).
			Wrap(err)
	}
	return nil
}
