package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"AltPull/internal/domain/errs"
	"AltPull/internal/domain/models"
	domrepo "AltPull/internal/domain/repository"
	"AltPull/internal/service/retry"
	applogger "AltPull/pkg/logger"
)

const partitionFile = "data.parquet"

// StorageConfig configures partitioned output.
type StorageConfig struct {
	BasePath          string        `yaml:"base_path" default:"data/altdata" validate:"required"`
	Compression       string        `yaml:"compression" default:"snappy" validate:"oneof=snappy gzip zstd none"`
	PartitionTimezone string        `yaml:"partition_timezone" default:"UTC"`
	WriteRetries      int           `yaml:"write_retries" default:"2" validate:"gte=0"`
	RetryDelay        time.Duration `yaml:"retry_delay" default:"200ms"`
}

type newsRow struct {
	Timestamp      time.Time `parquet:"timestamp,timestamp(nanosecond)"`
	SentimentScore float64   `parquet:"sentiment_score"`
	NewsVolume     float64   `parquet:"news_volume"`
	Source         string    `parquet:"source"`
	Headline       string    `parquet:"headline"`
	URL            string    `parquet:"url"`
}

type onChainRow struct {
	Timestamp              time.Time `parquet:"timestamp,timestamp(nanosecond)"`
	OnChainActiveAddresses float64   `parquet:"onchain_active_addresses"`
	OnChainTxVolume        float64   `parquet:"onchain_tx_volume"`
	StablecoinRatio        float64   `parquet:"stablecoin_ratio"`
}

// PartitionOption configures ParquetPartitionWriter.
type PartitionOption func(*ParquetPartitionWriter)

func WithPartitionMetrics(m domrepo.Metrics) PartitionOption {
	return func(w *ParquetPartitionWriter) { w.metrics = m }
}

func WithPartitionLogger(l *applogger.Logger) PartitionOption {
	return func(w *ParquetPartitionWriter) { w.logger = l }
}

// ParquetPartitionWriter writes one parquet file per (source, symbol, day).
// Each partition is written to a staging file in its directory and renamed into place,
// so readers never see a half-written partition.
type ParquetPartitionWriter struct {
	base    string
	codec   compress.Codec
	loc     *time.Location
	retry   *retry.Policy
	metrics domrepo.Metrics
	logger  *applogger.Logger
}

func NewParquetPartitionWriter(cfg StorageConfig, opts ...PartitionOption) (*ParquetPartitionWriter, error) {
	if cfg.BasePath == "" {
		return nil, errs.New(errs.KindConfig, "", "storage base path is required")
	}
	codec, err := codecFor(cfg.Compression)
	if err != nil {
		return nil, err
	}
	loc := time.UTC
	if cfg.PartitionTimezone != "" {
		loc, err = time.LoadLocation(cfg.PartitionTimezone)
		if err != nil {
			return nil, errs.Wrap(errs.KindConfig, "", err).WithOp("load partition timezone")
		}
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}

	w := &ParquetPartitionWriter{
		base:    filepath.Clean(cfg.BasePath),
		codec:   codec,
		loc:     loc,
		retry:   retry.New(retry.Config{MaxRetries: cfg.WriteRetries, BaseDelay: delay, MaxDelay: 8 * delay}),
		metrics: domrepo.NoopMetrics{},
		logger:  applogger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func codecFor(name string) (compress.Codec, error) {
	switch strings.ToLower(name) {
	case "", "snappy":
		return &parquet.Snappy, nil
	case "gzip":
		return &parquet.Gzip, nil
	case "zstd":
		return &parquet.Zstd, nil
	case "none", "uncompressed":
		return &parquet.Uncompressed, nil
	default:
		return nil, errs.New(errs.KindConfig, "", fmt.Sprintf("unsupported compression %q", name))
	}
}

// BasePath returns the storage root.
func (w *ParquetPartitionWriter) BasePath() string { return w.base }

// PartitionDir returns {base}/{source_lower}/{SYMBOL_UPPER}/{YYYY}/{MM}/{DD} for the day of ts.
func (w *ParquetPartitionWriter) PartitionDir(source, symbol string, ts time.Time) string {
	day := ts.In(w.loc)
	return filepath.Join(w.base,
		strings.ToLower(source),
		strings.ToUpper(symbol),
		fmt.Sprintf("%04d", day.Year()),
		fmt.Sprintf("%02d", int(day.Month())),
		fmt.Sprintf("%02d", day.Day()),
	)
}

// Write groups the slice by partition day and writes each partition atomically,
// retrying a failed partition as a whole.
func (w *ParquetPartitionWriter) Write(ctx context.Context, source string, slice *models.DataSlice) (models.StorageResult, error) {
	result := models.StorageResult{BasePath: w.base}
	if slice.Empty() {
		return result, nil
	}

	groups := make(map[string][]models.Record)
	for _, rec := range slice.Records {
		dir := w.PartitionDir(source, slice.Meta.Symbol, rec.Time())
		groups[dir] = append(groups[dir], rec)
	}
	dirs := make([]string, 0, len(groups))
	for dir := range groups {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	labels := map[string]string{
		domrepo.LabelSource: strings.ToLower(source),
		domrepo.LabelSymbol: strings.ToUpper(slice.Meta.Symbol),
	}
	for _, dir := range dirs {
		records := groups[dir]
		err := w.retry.Do(ctx, func(ctx context.Context) error {
			return w.writePartition(ctx, dir, records)
		})
		if err != nil {
			w.metrics.Record(domrepo.EventPartitionWrite, withResult(labels, "failure"), 1)
			w.logger.Error("partition write failed",
				applogger.String("dir", dir),
				applogger.Int("rows", len(records)),
				applogger.Error(err),
			)
			return result, err
		}
		w.metrics.Record(domrepo.EventPartitionWrite, withResult(labels, "success"), 1)

		result.RowsWritten += len(records)
		result.PartitionsWritten++
		result.Paths = append(result.Paths, filepath.Join(dir, partitionFile))
	}
	return result, nil
}

func (w *ParquetPartitionWriter) writePartition(ctx context.Context, dir string, records []models.Record) (err error) {
	op := "write partition " + dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrap(errs.KindStorage, "", err).WithOp(op)
	}

	staging := filepath.Join(dir, fmt.Sprintf(".%s-%s.tmp", partitionFile, uuid.NewString()))
	f, err := os.OpenFile(staging, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return errs.Wrap(errs.KindStorage, "", err).WithOp(op)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(staging)
		}
	}()

	switch records[0].Kind() {
	case models.KindNews:
		err = writeRows(f, w.codec, toNewsRows(records))
	case models.KindOnChain:
		err = writeRows(f, w.codec, toOnChainRows(records))
	default:
		err = fmt.Errorf("unsupported record kind %q", records[0].Kind())
	}
	if err != nil {
		return errs.Wrap(errs.KindStorage, "", err).WithOp(op)
	}
	if err = f.Sync(); err != nil {
		return errs.Wrap(errs.KindStorage, "", err).WithOp(op)
	}
	if err = f.Close(); err != nil {
		return errs.Wrap(errs.KindStorage, "", err).WithOp(op)
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = os.Rename(staging, filepath.Join(dir, partitionFile)); err != nil {
		return errs.Wrap(errs.KindStorage, "", err).WithOp(op)
	}
	return nil
}

func writeRows[T any](f *os.File, codec compress.Codec, rows []T) error {
	pw := parquet.NewGenericWriter[T](f, parquet.Compression(codec))
	if _, err := pw.Write(rows); err != nil {
		_ = pw.Close()
		return fmt.Errorf("write rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

func toNewsRows(records []models.Record) []newsRow {
	rows := make([]newsRow, 0, len(records))
	for _, r := range records {
		n, ok := r.(models.NewsRecord)
		if !ok {
			continue
		}
		rows = append(rows, newsRow{
			Timestamp:      n.Timestamp.UTC(),
			SentimentScore: n.SentimentScore,
			NewsVolume:     n.NewsVolume,
			Source:         n.Source,
			Headline:       n.Headline,
			URL:            n.URL,
		})
	}
	return rows
}

func toOnChainRows(records []models.Record) []onChainRow {
	rows := make([]onChainRow, 0, len(records))
	for _, r := range records {
		o, ok := r.(models.OnChainRecord)
		if !ok {
			continue
		}
		rows = append(rows, onChainRow{
			Timestamp:              o.Timestamp.UTC(),
			OnChainActiveAddresses: o.OnChainActiveAddresses,
			OnChainTxVolume:        o.OnChainTxVolume,
			StablecoinRatio:        o.StablecoinRatio,
		})
	}
	return rows
}

// ReadPartition loads one partition file written for kind.
func ReadPartition(path string, kind models.Kind) ([]models.Record, error) {
	switch kind {
	case models.KindNews:
		rows, err := parquet.ReadFile[newsRow](path)
		if err != nil {
			return nil, fmt.Errorf("read partition %s: %w", path, err)
		}
		out := make([]models.Record, len(rows))
		for i, r := range rows {
			out[i] = models.NewsRecord{
				Timestamp:      r.Timestamp.UTC(),
				SentimentScore: r.SentimentScore,
				NewsVolume:     r.NewsVolume,
				Source:         r.Source,
				Headline:       r.Headline,
				URL:            r.URL,
			}
		}
		return out, nil
	case models.KindOnChain:
		rows, err := parquet.ReadFile[onChainRow](path)
		if err != nil {
			return nil, fmt.Errorf("read partition %s: %w", path, err)
		}
		out := make([]models.Record, len(rows))
		for i, r := range rows {
			out[i] = models.OnChainRecord{
				Timestamp:              r.Timestamp.UTC(),
				OnChainActiveAddresses: r.OnChainActiveAddresses,
				OnChainTxVolume:        r.OnChainTxVolume,
				StablecoinRatio:        r.StablecoinRatio,
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported record kind %q", kind)
	}
}

// ReadRange loads every stored partition for (source, symbol) and keeps records within
// [start, end]; nil bounds are open.
func (w *ParquetPartitionWriter) ReadRange(source, symbol string, kind models.Kind, start, end *time.Time) (*models.DataSlice, error) {
	pattern := filepath.Join(w.base, strings.ToLower(source), strings.ToUpper(symbol), "*", "*", "*", partitionFile)
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	sort.Strings(paths)

	var records []models.Record
	for _, p := range paths {
		recs, err := ReadPartition(p, kind)
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			if start != nil && r.Time().Before(*start) {
				continue
			}
			if end != nil && r.Time().After(*end) {
				continue
			}
			records = append(records, r)
		}
	}
	return models.NewDataSlice(models.SliceMetadata{
		Provider: "storage",
		Symbol:   strings.ToUpper(symbol),
		Kind:     kind,
		Start:    start,
		End:      end,
	}, records), nil
}

func withResult(labels map[string]string, result string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		out[k] = v
	}
	out[domrepo.LabelResult] = result
	return out
}
