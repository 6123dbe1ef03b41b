package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"AltPull/internal/domain/models"
	pkgch "AltPull/pkg/clickhouse"
	applogger "AltPull/pkg/logger"
)

const runsTable = "etl_runs"

// RunCatalogSchema returns the DDL for the run history table in database.
func RunCatalogSchema(database string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, database),
		fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s.%s (
            run_key      String,
            flow_run_id  String,
            source       LowCardinality(String),
            symbol       LowCardinality(String),
            status       LowCardinality(String),
            stage        LowCardinality(String),
            rows         UInt32,
            partitions   UInt32,
            base_path    String,
            error        String,
            started_at   DateTime64(3, 'UTC'),
            duration_ms  Int64
        )
        ENGINE = MergeTree
        ORDER BY (source, symbol, started_at)
    `, database, runsTable),
	}
}

// CHRunCatalog stores run history in ClickHouse.
type CHRunCatalog struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHRunCatalog(ch *pkgch.Client, database string) *CHRunCatalog {
	return &CHRunCatalog{db: ch.DB(), table: database + "." + runsTable, l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (s *CHRunCatalog) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHRunCatalog) Record(ctx context.Context, rec models.RunRecord) error {
	q := fmt.Sprintf(`
        INSERT INTO %s (run_key, flow_run_id, source, symbol, status, stage, rows, partitions, base_path, error, started_at, duration_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, s.table)
	_, err := s.db.ExecContext(ctx, q,
		rec.RunKey, rec.FlowRunID, rec.Source, rec.Symbol, rec.Status, string(rec.Stage),
		uint32(rec.Rows), uint32(rec.Partitions), rec.BasePath, rec.Error,
		rec.StartedAt.UTC(), rec.Duration.Milliseconds(),
	)
	if err != nil {
		s.l.Error("clickhouse record_run error",
			applogger.String("run_key", rec.RunKey),
			applogger.Error(err),
		)
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

func (s *CHRunCatalog) List(ctx context.Context, source, symbol string, limit int) ([]models.RunRecord, error) {
	start := time.Now()
	q, args := listRunsQuery(s.table, source, symbol, limit)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse list_runs query error",
			applogger.String("source", source),
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := make([]models.RunRecord, 0, limit)
	for rows.Next() {
		var (
			r          models.RunRecord
			stage      string
			nrows      uint32
			partitions uint32
			durationMs int64
		)
		if err := rows.Scan(&r.RunKey, &r.FlowRunID, &r.Source, &r.Symbol, &r.Status, &stage,
			&nrows, &partitions, &r.BasePath, &r.Error, &r.StartedAt, &durationMs); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Stage = models.Stage(stage)
		r.Rows = int(nrows)
		r.Partitions = int(partitions)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse list_runs ok",
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// Close is a no-op; the shared client owns the pool.
func (s *CHRunCatalog) Close() error { return nil }

func listRunsQuery(table, source, symbol string, limit int) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	if source != "" {
		where = append(where, "source = ?")
		args = append(args, strings.ToLower(source))
	}
	if symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, strings.ToUpper(symbol))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT run_key, flow_run_id, source, symbol, status, stage, rows, partitions, base_path, error, started_at, duration_ms FROM %s", table)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY started_at DESC LIMIT ?")
	args = append(args, normalizeLimit(limit))
	return b.String(), args
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}

// MemoryRunCatalog keeps the most recent run records in process.
type MemoryRunCatalog struct {
	mu      sync.RWMutex
	max     int
	records []models.RunRecord
}

func NewMemoryRunCatalog(max int) *MemoryRunCatalog {
	if max <= 0 {
		max = 1000
	}
	return &MemoryRunCatalog{max: max}
}

func (m *MemoryRunCatalog) Record(_ context.Context, rec models.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	if len(m.records) > m.max {
		m.records = m.records[len(m.records)-m.max:]
	}
	return nil
}

// List returns matching records newest first.
func (m *MemoryRunCatalog) List(_ context.Context, source, symbol string, limit int) ([]models.RunRecord, error) {
	limit = normalizeLimit(limit)
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.RunRecord, 0, limit)
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		r := m.records[i]
		if source != "" && !strings.EqualFold(r.Source, source) {
			continue
		}
		if symbol != "" && !strings.EqualFold(r.Symbol, symbol) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *MemoryRunCatalog) Close() error { return nil }
