package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/rotisserie/eris"

	"github.com/shanehull/phonesourcer/internal/model"
)

// DuckDBRepo stores accepted phones and processed entity ids per collector
// scope. The same phone may be held by several scopes; queries across
// scopes report its earliest source.
type DuckDBRepo struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDuckDBRepo opens the database at path; an empty path is in-memory.
func NewDuckDBRepo(path string, logger *slog.Logger) (*DuckDBRepo, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, eris.Wrap(err, "storage: open duckdb")
	}
	return &DuckDBRepo{db: db, logger: logger}, nil
}

func (r *DuckDBRepo) Init(ctx context.Context) error {
	for _, query := range []string{`
	CREATE TABLE IF NOT EXISTS phones (
		scope TEXT,
		phone TEXT,
		source TEXT,
		seq BIGINT,
		first_seen TIMESTAMP,
		PRIMARY KEY (scope, phone)
	);`, `
	CREATE TABLE IF NOT EXISTS entities (
		scope TEXT,
		entity_id TEXT,
		processed_at TIMESTAMP,
		PRIMARY KEY (scope, entity_id)
	);`} {
		if _, err := r.db.ExecContext(ctx, query); err != nil {
			return eris.Wrap(err, "storage: init schema")
		}
	}
	return nil
}

const (
	insertPhone = `
	INSERT INTO phones (scope, phone, source, seq, first_seen)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (scope, phone) DO NOTHING;`

	insertEntity = `
	INSERT INTO entities (scope, entity_id, processed_at)
	VALUES (?, ?, ?)
	ON CONFLICT (scope, entity_id) DO NOTHING;`
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SavePhone records e under scope. The first source seen is kept. It
// reports whether the phone was new to the scope.
func (r *DuckDBRepo) SavePhone(ctx context.Context, scope string, e model.Entry) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM phones WHERE scope = ? AND phone = ?)", scope, e.Phone.String()).Scan(&exists)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, eris.Wrap(err, "storage: check phone")
	}

	if _, err := r.db.ExecContext(ctx, insertPhone, scope, e.Phone.String(), e.Source, e.Seq, time.Now()); err != nil {
		return false, eris.Wrap(err, "storage: save phone")
	}
	return !exists, nil
}

// Phones loads the accepted set of scope in acceptance order. Stored values
// are re-normalized; rows that no longer normalize are dropped.
func (r *DuckDBRepo) Phones(ctx context.Context, scope string) (*model.AcceptedSet, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT phone, source FROM phones WHERE scope = ? ORDER BY seq, phone", scope)
	if err != nil {
		return nil, eris.Wrap(err, "storage: query phones")
	}
	defer rows.Close()

	set := model.NewAcceptedSet()
	for rows.Next() {
		var raw, source string
		if err := rows.Scan(&raw, &source); err != nil {
			return nil, eris.Wrap(err, "storage: scan phone")
		}
		if p, ok := model.NormalizePhone(raw); ok {
			set.Add(p, source)
		}
	}
	return set, eris.Wrap(rows.Err(), "storage: iterate phones")
}

func (r *DuckDBRepo) ProcessedEntities(ctx context.Context, scope string) (model.EntitySet, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT entity_id FROM entities WHERE scope = ?", scope)
	if err != nil {
		return nil, eris.Wrap(err, "storage: query entities")
	}
	defer rows.Close()

	out := make(model.EntitySet)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "storage: scan entity")
		}
		out.Add(id)
	}
	return out, eris.Wrap(rows.Err(), "storage: iterate entities")
}

func (r *DuckDBRepo) MarkProcessed(ctx context.Context, scope string, ids ...string) error {
	return markProcessed(ctx, r.db, scope, time.Now(), ids)
}

func markProcessed(ctx context.Context, ex execer, scope string, now time.Time, ids []string) error {
	for _, id := range ids {
		if _, err := ex.ExecContext(ctx, insertEntity, scope, id, now); err != nil {
			return eris.Wrapf(err, "storage: mark %s processed", id)
		}
	}
	return nil
}

// save writes a whole snapshot of one scope in a single transaction.
func (r *DuckDBRepo) save(ctx context.Context, scope string, set *model.AcceptedSet, processed model.EntitySet) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "storage: begin")
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	for _, e := range set.Sorted() {
		if _, err := tx.ExecContext(ctx, insertPhone, scope, e.Phone.String(), e.Source, e.Seq, now); err != nil {
			return eris.Wrap(err, "storage: save phone")
		}
	}
	if err := markProcessed(ctx, tx, scope, now, SortedIDs(processed)); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "storage: commit")
}

// Checkpoint returns a CheckpointStore over one collector scope.
func (r *DuckDBRepo) Checkpoint(scope string) CheckpointStore {
	return &duckCheckpoint{repo: r, scope: scope}
}

type duckCheckpoint struct {
	repo  *DuckDBRepo
	scope string
}

func (c *duckCheckpoint) Load(ctx context.Context) (*model.AcceptedSet, model.EntitySet, error) {
	set, err := c.repo.Phones(ctx, c.scope)
	if err != nil {
		return nil, nil, err
	}
	processed, err := c.repo.ProcessedEntities(ctx, c.scope)
	if err != nil {
		return nil, nil, err
	}
	return set, processed, nil
}

func (c *duckCheckpoint) Save(ctx context.Context, set *model.AcceptedSet, processed model.EntitySet) error {
	return c.repo.save(ctx, c.scope, set, processed)
}

// Filter narrows Search, ExportCSV and DeleteByFilters. Zero fields match
// everything.
type Filter struct {
	PhonePrefix string
	Sources     []string
	Scope       string
	Limit       int
}

// where renders the filter as a SQL condition. Each value goes through
// bind exactly once, in order, and its result is placed in the SQL as is.
func (f Filter) where(bind func(v string) string) string {
	var conds []string
	if f.PhonePrefix != "" {
		conds = append(conds, "starts_with(phone, "+bind(f.PhonePrefix)+")")
	}
	if len(f.Sources) > 0 && f.Sources[0] != "" {
		var srcConds []string
		for _, s := range f.Sources {
			srcConds = append(srcConds, "upper(source) = "+bind(strings.ToUpper(s)))
		}
		conds = append(conds, "("+strings.Join(srcConds, " OR ")+")")
	}
	if f.Scope != "" {
		conds = append(conds, "scope = "+bind(f.Scope))
	}
	if len(conds) == 0 {
		return "TRUE"
	}
	return strings.Join(conds, " AND ")
}

// params renders the filter with bind placeholders and returns the args.
func (f Filter) params() (string, []any) {
	var args []any
	where := f.where(func(v string) string {
		args = append(args, v)
		return "?"
	})
	return where, args
}

// distinctPhones picks, per phone, the row that was seen first.
const distinctPhones = `
	SELECT DISTINCT ON (phone) phone, source, scope, first_seen
	FROM phones
	WHERE %s
	ORDER BY phone, first_seen, scope`

// Search returns matching phones, one row per phone, sorted by phone.
func (r *DuckDBRepo) Search(ctx context.Context, f Filter) ([]model.Entry, error) {
	where, args := f.params()
	query := fmt.Sprintf(distinctPhones, where)
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "storage: search")
	}
	defer rows.Close()

	var out []model.Entry
	for rows.Next() {
		var (
			phone, source, scope string
			seen                 time.Time
		)
		if err := rows.Scan(&phone, &source, &scope, &seen); err != nil {
			return nil, eris.Wrap(err, "storage: scan search row")
		}
		out = append(out, model.Entry{Phone: model.Phone(phone), Source: source, Seq: len(out) + 1})
	}
	return out, eris.Wrap(rows.Err(), "storage: iterate search rows")
}

// ExportCSV writes matching phones to path as a Phone,Source CSV. COPY
// takes no bind parameters, so filter values are inlined as literals.
func (r *DuckDBRepo) ExportCSV(ctx context.Context, path string, f Filter) error {
	inner := fmt.Sprintf(distinctPhones, f.where(quote))
	query := fmt.Sprintf(`
		COPY (
			SELECT phone AS "Phone", source AS "Source"
			FROM (%s)
			ORDER BY phone
		) TO %s (HEADER, DELIMITER ',');`, inner, quote(path))

	_, err := r.db.ExecContext(ctx, query)
	return eris.Wrap(err, "storage: export csv")
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// DeleteByFilters removes matching rows and returns how many went. At least
// one of phone prefix, source or scope is required.
func (r *DuckDBRepo) DeleteByFilters(ctx context.Context, f Filter) (int64, error) {
	where, args := f.params()
	if len(args) == 0 {
		return 0, eris.New("storage: no filters provided")
	}

	res, err := r.db.ExecContext(ctx, "DELETE FROM phones WHERE "+where, args...)
	if err != nil {
		return 0, eris.Wrap(err, "storage: delete phones")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "storage: rows affected")
	}
	r.logger.Info("Deleted phones", "count", n)
	return n, nil
}

func (r *DuckDBRepo) Close() error {
	return r.db.Close()
}
