package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteJournal struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		return nil, err
	}

	return &SQLiteJournal{db: db}, nil
}

// RecordOpen inserts the open leg. Replaying the same signal id is a no-op.
func (j *SQLiteJournal) RecordOpen(r SignalRecord) error {
	_, err := j.db.Exec(`
		INSERT OR IGNORE INTO signals
		(signal_id, symbol, side, entry_price, stop_price, target_price,
		 score, threshold, wick_ratio, spike_mult, volume_z,
		 leverage, margin_usdt, open_time, steps_filled, avg_price, liq_estimate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SignalID, r.Symbol, r.Side, r.EntryPrice, r.StopPrice, r.TargetPrice,
		r.Score, r.Threshold, r.WickRatio, r.SpikeMult, r.VolumeZ,
		r.Leverage, r.MarginUSDT, r.OpenTime, r.StepsFilled, r.AvgPrice, r.LiqEstimate,
	)
	return err
}

// RecordClose completes the row. Only the first close for a signal lands.
func (j *SQLiteJournal) RecordClose(r SignalRecord) error {
	_, err := j.db.Exec(`
		UPDATE signals SET
			exit_price = ?, close_time = ?, realized_pnl = ?, reason = ?,
			steps_filled = ?, avg_price = ?, liq_estimate = ?, mfe_pct = ?, mae_pct = ?
		WHERE signal_id = ? AND close_time IS NULL`,
		r.ExitPrice, r.CloseTime, r.RealizedPnL, r.Reason,
		r.StepsFilled, r.AvgPrice, r.LiqEstimate, r.MFEPct, r.MAEPct,
		r.SignalID,
	)
	return err
}

// Open returns still-open rows, newest first; used to reconcile reloads.
func (j *SQLiteJournal) Open() ([]SignalRecord, error) {
	rows, err := j.db.Query(`
		SELECT signal_id, symbol, side, entry_price, stop_price, target_price,
		       score, threshold, open_time
		FROM signals WHERE close_time IS NULL ORDER BY open_time DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SignalRecord
	for rows.Next() {
		var r SignalRecord
		if err := rows.Scan(&r.SignalID, &r.Symbol, &r.Side, &r.EntryPrice,
			&r.StopPrice, &r.TargetPrice, &r.Score, &r.Threshold, &r.OpenTime); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
