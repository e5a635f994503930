package sqlite

import "github.com/pulsarsearch/candypicker/internal/storage/migrations"

// schemaMigrations build the history schema. Append, never edit: databases
// already at a version do not re-run it.
var schemaMigrations = migrations.NewManager(
	migrations.Migration{
		Version:     1,
		Description: "create runs table",
		Up:          runsTable,
		Down:        "DROP TABLE IF EXISTS runs",
	},
	migrations.Migration{
		Version:     2,
		Description: "record the host a run executed on",
		Up:          "ALTER TABLE runs ADD COLUMN host TEXT NOT NULL DEFAULT ''",
		Down:        "ALTER TABLE runs DROP COLUMN host",
	},
)

const runsTable = `
-- Runs table: one row per successful clustering run
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    mode TEXT NOT NULL CHECK(mode IN ('csv', 'xml', 'match')),
    started_at INTEGER NOT NULL,
    elapsed_ms INTEGER NOT NULL DEFAULT 0 CHECK(elapsed_ms >= 0),
    inputs TEXT NOT NULL DEFAULT '[]',
    outputs TEXT NOT NULL DEFAULT '[]',
    tolerance TEXT NOT NULL DEFAULT '{}',
    row_count INTEGER NOT NULL DEFAULT 0,
    dropped INTEGER NOT NULL DEFAULT 0,
    pivots INTEGER NOT NULL DEFAULT 0,
    suppressed INTEGER NOT NULL DEFAULT 0,
    comparisons INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_mode ON runs(mode);
`
