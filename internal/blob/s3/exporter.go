package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/alanyoungcy/predictionledger/internal/domain"
)

const (
	contentTypeJSONL = "application/x-ndjson"

	defaultExportInterval     = 15 * time.Minute
	defaultMultipartThreshold = 64 * 1024 * 1024
)

// SnapshotSource is the read side of the ledger the exporter copies from.
// Snapshot returns markets and trades as of one instant.
type SnapshotSource interface {
	Snapshot() ([]domain.Market, []domain.Trade)
}

// ExporterConfig configures an Exporter.
type ExporterConfig struct {
	// Prefix is prepended to every object key.
	Prefix string
	// Interval between periodic exports in Run.
	Interval time.Duration
	// Files at or above MultipartThreshold bytes go through PutMultipart.
	MultipartThreshold int
	PartSize           int64
}

// ExportResult describes one completed snapshot.
type ExportResult struct {
	MarketsPath string
	TradesPath  string
	Markets     int
	Trades      int
	Skipped     bool
}

// Exporter writes point-in-time copies of the ledger to object storage as
// two JSONL files, one market or trade per line. Snapshots are for offline
// analysis only and are never loaded back into a ledger.
type Exporter struct {
	source SnapshotSource
	writer domain.BlobWriter
	audit  domain.AuditStore
	clock  domain.Clock
	cfg    ExporterConfig
	logger *slog.Logger

	mu   sync.Mutex
	last fingerprint
}

// fingerprint identifies ledger content cheaply. Every mutation raises a
// market's version, so equal counts and version sums mean nothing changed.
type fingerprint struct {
	markets  int
	trades   int
	versions int64
}

// NewExporter creates an Exporter. audit may be nil.
func NewExporter(source SnapshotSource, writer domain.BlobWriter, audit domain.AuditStore, clock domain.Clock, cfg ExporterConfig, logger *slog.Logger) *Exporter {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultExportInterval
	}
	if cfg.MultipartThreshold <= 0 {
		cfg.MultipartThreshold = defaultMultipartThreshold
	}
	if clock == nil {
		clock = domain.SystemClock
	}
	return &Exporter{
		source: source,
		writer: writer,
		audit:  audit,
		clock:  clock,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "exporter")),
	}
}

// Export uploads a snapshot unless the ledger is unchanged since the last
// successful export (or force is set).
func (e *Exporter) Export(ctx context.Context, force bool) (ExportResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	markets, trades := e.source.Snapshot()

	fp := fingerprint{markets: len(markets), trades: len(trades)}
	for _, m := range markets {
		fp.versions += m.Version
	}
	if !force && fp == e.last {
		return ExportResult{Skipped: true}, nil
	}

	now := e.clock.Now().UTC()
	dir := snapshotDir(e.cfg.Prefix, now)
	res := ExportResult{
		MarketsPath: path.Join(dir, "markets.jsonl"),
		TradesPath:  path.Join(dir, "trades.jsonl"),
		Markets:     len(markets),
		Trades:      len(trades),
	}

	if err := upload(ctx, e, res.MarketsPath, markets); err != nil {
		return ExportResult{}, err
	}
	if err := upload(ctx, e, res.TradesPath, trades); err != nil {
		return ExportResult{}, err
	}
	e.last = fp

	e.logger.InfoContext(ctx, "exporter: snapshot uploaded",
		slog.String("dir", dir),
		slog.Int("markets", res.Markets),
		slog.Int("trades", res.Trades),
	)
	if e.audit != nil {
		if err := e.audit.Log(ctx, "export.snapshot", map[string]any{
			"dir":     dir,
			"markets": res.Markets,
			"trades":  res.Trades,
		}); err != nil {
			e.logger.WarnContext(ctx, "exporter: audit log failed", slog.String("error", err.Error()))
		}
	}
	return res, nil
}

// upload writes records as JSONL, switching to a multipart upload for large
// files.
func upload[T any](ctx context.Context, e *Exporter, key string, records []T) error {
	buf, err := marshalJSONL(records)
	if err != nil {
		return fmt.Errorf("s3blob: export %s: %w", key, err)
	}
	if len(buf) >= e.cfg.MultipartThreshold {
		return e.writer.PutMultipart(ctx, key, bytes.NewReader(buf), e.cfg.PartSize)
	}
	return e.writer.Put(ctx, key, bytes.NewReader(buf), contentTypeJSONL)
}

// Run exports once immediately and then every Interval until ctx ends.
// Failed exports are logged and retried on the next tick.
func (e *Exporter) Run(ctx context.Context) error {
	e.logger.InfoContext(ctx, "exporter: started", slog.Duration("interval", e.cfg.Interval))

	e.exportLogged(ctx)

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("exporter: stopped")
			return ctx.Err()
		case <-ticker.C:
			e.exportLogged(ctx)
		}
	}
}

func (e *Exporter) exportLogged(ctx context.Context) {
	if _, err := e.Export(ctx, false); err != nil {
		e.logger.ErrorContext(ctx, "exporter: snapshot failed", slog.String("error", err.Error()))
	}
}

// snapshotDir partitions snapshots by day:
//
//	<prefix>/snapshots/2026-10-18/1792296000000
func snapshotDir(prefix string, at time.Time) string {
	return path.Join(prefix, "snapshots", at.Format("2006-01-02"), fmt.Sprintf("%d", at.UnixMilli()))
}

func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range records {
		if err := enc.Encode(records[i]); err != nil {
			return nil, fmt.Errorf("marshal record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
