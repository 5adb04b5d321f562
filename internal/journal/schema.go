package journal

const Schema = `
CREATE TABLE IF NOT EXISTS signals (
	signal_id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	entry_price REAL NOT NULL,
	stop_price REAL NOT NULL,
	target_price REAL NOT NULL,
	score REAL NOT NULL,
	threshold REAL NOT NULL,
	wick_ratio REAL NOT NULL,
	spike_mult REAL NOT NULL,
	volume_z REAL NOT NULL,
	leverage REAL NOT NULL,
	margin_usdt REAL NOT NULL,
	open_time DATETIME NOT NULL,
	exit_price REAL,
	close_time DATETIME,
	realized_pnl REAL,
	reason TEXT,
	steps_filled INTEGER NOT NULL DEFAULT 1,
	avg_price REAL,
	liq_estimate REAL,
	mfe_pct REAL,
	mae_pct REAL
);

CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol);
CREATE INDEX IF NOT EXISTS idx_signals_open_time ON signals(open_time);
`
