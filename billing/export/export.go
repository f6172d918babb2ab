// Package export writes a closed billing period's usage events to S3 as
// CSV, the durable artifact invoicing and finance reconcile against.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/ticketsmith/metering/billing/subscription"
	"github.com/ticketsmith/metering/billing/usage"
)

// Config holds the S3 destination for period exports.
type Config struct {
	Bucket         string `env:"EXPORT_S3_BUCKET,required"`
	Region         string `env:"EXPORT_S3_REGION" envDefault:"us-east-1"`
	AccessKeyID    string `env:"EXPORT_S3_ACCESS_KEY_ID"`
	SecretKey      string `env:"EXPORT_S3_SECRET_KEY"`
	Endpoint       string `env:"EXPORT_S3_ENDPOINT"`
	ForcePathStyle bool   `env:"EXPORT_S3_FORCE_PATH_STYLE" envDefault:"false"`
}

var (
	ErrInvalidConfig  = errors.New("export: invalid config")
	ErrNoEvents       = errors.New("export: period has no events")
	ErrUploadRejected = errors.New("export: upload rejected")
)

// S3Client is the slice of the S3 API the exporter uses.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// EventSource yields a subscription's events within a period.
type EventSource interface {
	EventsInPeriod(ctx context.Context, subID uuid.UUID, start, end time.Time) ([]usage.Event, error)
}

// Exporter turns billing periods into CSV objects in S3.
type Exporter struct {
	client S3Client
	bucket string
	source EventSource
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithS3Client injects a pre-configured client, used by tests.
func WithS3Client(client S3Client) Option {
	return func(e *Exporter) { e.client = client }
}

// NewExporter builds an Exporter, constructing an S3 client from cfg
// unless one is injected.
func NewExporter(ctx context.Context, cfg Config, source EventSource, opts ...Option) (*Exporter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: Bucket is required", ErrInvalidConfig)
	}
	if source == nil {
		return nil, fmt.Errorf("%w: event source is required", ErrInvalidConfig)
	}

	e := &Exporter{bucket: cfg.Bucket, source: source}
	for _, opt := range opts {
		opt(e)
	}
	if e.client != nil {
		return e, nil
	}

	awsOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
		awsOptions = append(awsOptions,
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOptions...)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	e.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return e, nil
}

var csvHeader = []string{
	"event_id", "user_id", "organization_id", "team_id",
	"endpoint", "feature", "model", "tokens_used", "request_id", "created_at",
}

// ExportPeriod writes the period's events as one CSV object and returns
// its key, usage/{subscriptionID}/{periodStart}.csv. Re-exporting the
// same period overwrites the object with identical content, so the
// operation is safe to retry.
func (e *Exporter) ExportPeriod(ctx context.Context, subID uuid.UUID, period subscription.BillingPeriod) (string, error) {
	events, err := e.source.EventsInPeriod(ctx, subID, period.PeriodStart, period.PeriodEnd)
	if err != nil {
		return "", fmt.Errorf("export: load events: %w", err)
	}
	if len(events) == 0 {
		return "", ErrNoEvents
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return "", fmt.Errorf("export: write header: %w", err)
	}
	for _, ev := range events {
		if err := w.Write(csvRow(ev)); err != nil {
			return "", fmt.Errorf("export: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("export: flush csv: %w", err)
	}

	key := fmt.Sprintf("usage/%s/%s.csv", subID, period.PeriodStart.UTC().Format("2006-01-02"))
	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("%w: %s: %s", ErrUploadRejected, apiErr.ErrorCode(), apiErr.ErrorMessage())
		}
		return "", fmt.Errorf("export: upload: %w", err)
	}
	return key, nil
}

func csvRow(ev usage.Event) []string {
	orgID, teamID := "", ""
	if ev.OrganizationID != nil {
		orgID = ev.OrganizationID.String()
	}
	if ev.TeamID != nil {
		teamID = ev.TeamID.String()
	}
	return []string{
		ev.ID.String(), ev.UserID.String(), orgID, teamID,
		ev.Endpoint, ev.FeatureUsed, ev.ModelUsed,
		strconv.FormatInt(ev.TokensUsed, 10), ev.RequestID,
		ev.CreatedAt.UTC().Format(time.RFC3339),
	}
}
