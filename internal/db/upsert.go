package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig describes a bulk upsert.
type UpsertConfig struct {
	Table        string   // target table, optionally schema qualified
	Columns      []string // columns in row order
	ConflictKeys []string // unique constraint columns
	UpdateCols   []string // nil = every non-key column
}

// BulkUpsert loads rows into a temp table with COPY, drops rows whose
// conflict key repeats later in the batch, then merges into the target with
// INSERT ... ON CONFLICT DO UPDATE. The last row for a key wins.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return 0, eris.New("db: upsert: no conflict keys specified")
	}

	update := cfg.UpdateCols
	if update == nil {
		keys := make(map[string]bool, len(cfg.ConflictKeys))
		for _, k := range cfg.ConflictKeys {
			keys[k] = true
		}
		for _, c := range cfg.Columns {
			if !keys[c] {
				update = append(update, c)
			}
		}
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	temp := pgx.Identifier{"_tmp_upsert_" + strings.ReplaceAll(cfg.Table, ".", "_")}
	target := identifier(cfg.Table).Sanitize()

	create := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP", temp.Sanitize(), target)
	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: create temp table for %s", cfg.Table)
	}
	if _, err := tx.CopyFrom(ctx, temp, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: COPY into temp table for %s", cfg.Table)
	}

	var match []string
	for _, k := range cfg.ConflictKeys {
		q := pgx.Identifier{k}.Sanitize()
		match = append(match, fmt.Sprintf("a.%s = b.%s", q, q))
	}
	dedup := fmt.Sprintf("DELETE FROM %s a USING %s b WHERE a.ctid < b.ctid AND %s",
		temp.Sanitize(), temp.Sanitize(), strings.Join(match, " AND "))
	if _, err := tx.Exec(ctx, dedup); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: dedup temp table for %s", cfg.Table)
	}

	set := make([]string, len(update))
	for i, c := range update {
		q := pgx.Identifier{c}.Sanitize()
		set[i] = fmt.Sprintf("%s = EXCLUDED.%s", q, q)
	}
	conflict := "DO NOTHING"
	if len(set) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(set, ", ")
	}
	cols := quoteAndJoin(cfg.Columns)
	insert := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		target, cols, cols, temp.Sanitize(), quoteAndJoin(cfg.ConflictKeys), conflict)

	tag, err := tx.Exec(ctx, insert)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: INSERT ON CONFLICT for %s", cfg.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return tag.RowsAffected(), nil
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
