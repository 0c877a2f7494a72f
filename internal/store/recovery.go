package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"log/slog"
	"math"

	_ "modernc.org/sqlite"

	"github.com/wavemem/waverag/internal/waverr"
)

// recoveryBatchSize is how many vectors are handed to the ANN index per
// AddBatch during recovery.
const recoveryBatchSize = 512

// RecoveryStats reports the outcome of one recovery scan.
type RecoveryStats struct {
	Restored int
	Skipped  int
}

// RecoverANNIndex streams persisted vectors out of a SQLite store and
// rebuilds the ANN index from them. The table must expose integer ids
// and little-endian float32 vector blobs; rows whose blob is not exactly
// dim*4 bytes are skipped and counted, never fatal.
//
// The scan is CPU-bound and synchronous; callers dispatch it on a worker
// goroutine and bound it through ctx.
func RecoverANNIndex(ctx context.Context, dbPath string, index ANNIndex, dim int, logger *slog.Logger) (RecoveryStats, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return RecoveryStats{}, waverr.IOError("recovery: open database", err)
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx,
		`SELECT id, vector FROM vectors WHERE vector IS NOT NULL ORDER BY id`)
	if err != nil {
		return RecoveryStats{}, waverr.IOError("recovery: query vectors", err)
	}
	defer func() { _ = rows.Close() }()

	var stats RecoveryStats
	ids := make([]uint64, 0, recoveryBatchSize)
	flat := make([]float32, 0, recoveryBatchSize*dim)

	flush := func() error {
		if len(ids) == 0 {
			return nil
		}
		if _, err := index.AddBatch(ids, flat); err != nil {
			return err
		}
		stats.Restored += len(ids)
		ids = ids[:0]
		flat = flat[:0]
		return nil
	}

	for rows.Next() {
		var id int64
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return stats, waverr.IOError("recovery: scan row", err)
		}

		if len(blob) != dim*4 {
			stats.Skipped++
			logger.Warn("skipping malformed vector blob",
				slog.Int64("id", id),
				slog.Int("bytes", len(blob)),
				slog.Int("expected", dim*4))
			continue
		}

		for i := 0; i < dim; i++ {
			bits := binary.LittleEndian.Uint32(blob[i*4:])
			flat = append(flat, math.Float32frombits(bits))
		}
		ids = append(ids, uint64(id))

		if len(ids) == recoveryBatchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return stats, waverr.IOError("recovery: iterate rows", err)
	}
	if err := flush(); err != nil {
		return stats, err
	}

	logger.Info("ann recovery complete",
		slog.Int("restored", stats.Restored),
		slog.Int("skipped", stats.Skipped))
	return stats, nil
}
