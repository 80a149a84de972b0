// Package archive implements the best-effort S3 archival of a
// completed Message's full ordered event log, per SPEC_FULL.md §6
// "Supplemental egress". This is distinct from durable crash recovery
// (still a Non-goal): archival only ever runs after a Message reaches
// analysis_complete, never mid-run. Grounded on the teacher's
// internal/objectstore.S3Store (client construction, PutObject usage).
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/Tarpelite/xiaoyi-sub000/internal/eventfabric"
)

// Archiver uploads a Message's event log to S3, keyed by message id.
type Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// Config holds the static S3 connection settings; AccessKey/SecretKey
// are optional (falls back to the default AWS credential chain when
// empty, matching the teacher's S3Store).
type Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// New builds an Archiver from cfg.
func New(ctx context.Context, cfg Config) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive: bucket is required")
	}
	awsOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsOpts = append(awsOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &Archiver{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (a *Archiver) key(messageID string) string {
	if a.prefix == "" {
		return messageID + ".json"
	}
	return a.prefix + "/" + messageID + ".json"
}

// Archive uploads events as a single JSON array object. Failures are
// logged, never returned to the caller — archival is best-effort and
// must never affect a Message's own completion.
func (a *Archiver) Archive(ctx context.Context, messageID string, events []eventfabric.Event) {
	data, err := json.Marshal(events)
	if err != nil {
		log.Error().Err(err).Str("message_id", messageID).Msg("archive: marshal event log")
		return
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.key(messageID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		log.Error().Err(err).Str("message_id", messageID).Msg("archive: s3 put failed")
	}
}
