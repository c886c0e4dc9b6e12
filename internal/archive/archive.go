// Package archive exports the day's stock journal and cash log to an
// S3-compatible bucket (AWS S3 or MinIO). The ledger itself never reads the
// archive back; the objects are for accountants and disaster recovery.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"grain-ledger/internal/config"
	"grain-ledger/internal/core"
)

// Source is the read side of the ledger the exporter pulls rows from.
type Source interface {
	ListStockAdjustments(ctx context.Context, f core.AdjustmentFilter) ([]core.StockAdjustment, error)
	ListCashTransactions(ctx context.Context, p core.Page) ([]core.CashTransaction, error)
}

// Snapshot is the JSON document written for one day.
type Snapshot struct {
	Day              string                 `json:"day"`
	GeneratedAt      time.Time              `json:"generated_at"`
	StockAdjustments []core.StockAdjustment `json:"stock_adjustments"`
	CashTransactions []core.CashTransaction `json:"cash_transactions"`
}

// Exporter writes daily snapshots to a single bucket.
type Exporter struct {
	client *s3.Client
	bucket string
	loc    *time.Location
	now    func() time.Time
	log    *zap.Logger
}

// New creates an exporter from configuration. Credentials come from the
// default AWS chain (AWS_ACCESS_KEY_ID, profiles, instance roles).
func New(ctx context.Context, cfg config.ArchiveConfig, loc *time.Location, logger *zap.Logger) (*Exporter, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("archive bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "eu-central-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newExporter(client, cfg.Bucket, loc, logger), nil
}

func newExporter(client *s3.Client, bucket string, loc *time.Location, logger *zap.Logger) *Exporter {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		client: client,
		bucket: bucket,
		loc:    loc,
		now:    time.Now,
		log:    logger.Named("archive"),
	}
}

// Key returns the object key of a snapshot: ledger/<day>/<uuid>.json.
func Key(day string) string {
	return fmt.Sprintf("ledger/%s/%s.json", day, uuid.NewString())
}

// ExportDay collects the rows created on day (in the exporter's time zone)
// and uploads them as one JSON object. It returns the object key.
func (e *Exporter) ExportDay(ctx context.Context, src Source, day time.Time) (string, error) {
	snap, err := e.collect(ctx, src, day)
	if err != nil {
		return "", err
	}

	body, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}

	key := Key(snap.Day)
	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"ledger-day": snap.Day,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	e.log.Info("ledger snapshot archived",
		zap.String("bucket", e.bucket),
		zap.String("key", key),
		zap.Int("stock_adjustments", len(snap.StockAdjustments)),
		zap.Int("cash_transactions", len(snap.CashTransactions)))
	return key, nil
}

func (e *Exporter) collect(ctx context.Context, src Source, day time.Time) (*Snapshot, error) {
	local := day.In(e.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, e.loc)
	end := start.AddDate(0, 0, 1)
	within := func(t time.Time) bool { return !t.Before(start) && t.Before(end) }

	adjustments, err := src.ListStockAdjustments(ctx, core.AdjustmentFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list stock adjustments: %w", err)
	}
	transactions, err := src.ListCashTransactions(ctx, core.Page{})
	if err != nil {
		return nil, fmt.Errorf("failed to list cash transactions: %w", err)
	}

	snap := &Snapshot{
		Day:              start.Format("2006-01-02"),
		GeneratedAt:      e.now().UTC(),
		StockAdjustments: []core.StockAdjustment{},
		CashTransactions: []core.CashTransaction{},
	}
	for _, a := range adjustments {
		if within(a.CreatedAt) {
			snap.StockAdjustments = append(snap.StockAdjustments, a)
		}
	}
	for _, t := range transactions {
		if within(t.CreatedAt) {
			snap.CashTransactions = append(snap.CashTransactions, t)
		}
	}
	return snap, nil
}
