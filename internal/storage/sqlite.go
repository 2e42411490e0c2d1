// Package storage provides the SQLite-backed implementations of the
// ledger, report store, and audit log. One DB handle serves all of them;
// the schema is created on open so a fresh database file is usable
// immediately.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mockmate/mockmate/internal/domain"
	"github.com/mockmate/mockmate/internal/ledger"
	"github.com/mockmate/mockmate/internal/oracle"
	"github.com/mockmate/mockmate/internal/report"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id                TEXT PRIMARY KEY,
	credits_remaining INTEGER NOT NULL CHECK (credits_remaining >= 0),
	credits_used      INTEGER NOT NULL DEFAULT 0,
	job_description   TEXT NOT NULL DEFAULT '',
	resume            TEXT NOT NULL DEFAULT '',
	num_questions     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS reservations (
	token      TEXT PRIMARY KEY,
	account_id TEXT NOT NULL REFERENCES accounts(id),
	amount     INTEGER NOT NULL,
	released   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS reports (
	report_id  TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL UNIQUE,
	account_id TEXT NOT NULL,
	grade      TEXT NOT NULL,
	details    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_account ON reports(account_id, created_at);

CREATE TABLE IF NOT EXISTS audit_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id TEXT NOT NULL,
	run_id     TEXT NOT NULL,
	type       TEXT NOT NULL,
	details    TEXT,
	created_at TIMESTAMP NOT NULL
);
`

// DB wraps a SQLite handle and implements ledger.Ledger,
// ledger.AccountStore, report.Store, and oracle.AuditLog.
type DB struct {
	db *sql.DB
}

var (
	_ ledger.Ledger       = (*DB)(nil)
	_ ledger.AccountStore = (*DB)(nil)
	_ report.Store        = (*DB)(nil)
	_ oracle.AuditLog     = (*DB)(nil)
)

// Open opens (or creates) the SQLite database at path and applies the
// schema. Use ":memory:" for an ephemeral database.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// SQLite handles one writer at a time; serialize access through a
	// single connection to avoid SQLITE_BUSY under concurrent reservations.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close releases the underlying handle.
func (d *DB) Close() error { return d.db.Close() }

// Reserve implements ledger.Ledger with a single conditional UPDATE: the
// balance guard lives in the WHERE clause, so concurrent reservations can
// never drive the balance negative regardless of interleaving.
func (d *DB) Reserve(
	ctx context.Context, accountID string, amount int,
) (ledger.ReservationToken, error) {
	if amount <= 0 {
		return "", ledger.ErrInvalidAmount
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin reserve: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE accounts
		 SET credits_remaining = credits_remaining - ?, credits_used = credits_used + ?
		 WHERE id = ? AND credits_remaining >= ?`,
		amount, amount, accountID, amount)
	if err != nil {
		return "", fmt.Errorf("reserve credits: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("reserve credits: %w", err)
	}
	if n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM accounts WHERE id = ?`, accountID,
		).Scan(&exists); err != nil {
			return "", fmt.Errorf("reserve credits: %w", err)
		}
		if exists == 0 {
			return "", domain.ErrAccountNotFound
		}
		return "", domain.ErrInsufficientCredits
	}

	token := ledger.ReservationToken(uuid.NewString())
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO reservations (token, account_id, amount) VALUES (?, ?, ?)`,
		string(token), accountID, amount); err != nil {
		return "", fmt.Errorf("record reservation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit reserve: %w", err)
	}
	return token, nil
}

// Release implements ledger.Ledger. Idempotent per token: the refund UPDATE
// is guarded by released = 0, so replays commit nothing.
func (d *DB) Release(
	ctx context.Context, accountID string, amount int, token ledger.ReservationToken,
) error {
	if amount <= 0 {
		return ledger.ErrInvalidAmount
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin release: %w", err)
	}
	defer tx.Rollback()

	var (
		owner    string
		reserved int
		released int
	)
	err = tx.QueryRowContext(ctx,
		`SELECT account_id, amount, released FROM reservations WHERE token = ?`,
		string(token)).Scan(&owner, &reserved, &released)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ErrUnknownToken
	}
	if err != nil {
		return fmt.Errorf("lookup reservation: %w", err)
	}
	if owner != accountID {
		return ledger.ErrTokenAccountMismatch
	}
	if released != 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET credits_remaining = credits_remaining + ? WHERE id = ?`,
		reserved, accountID); err != nil {
		return fmt.Errorf("refund credits: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE reservations SET released = 1 WHERE token = ?`,
		string(token)); err != nil {
		return fmt.Errorf("mark released: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit release: %w", err)
	}
	return nil
}

// GetAccount implements ledger.AccountStore.
func (d *DB) GetAccount(ctx context.Context, accountID string) (domain.Account, error) {
	var acct domain.Account
	err := d.db.QueryRowContext(ctx,
		`SELECT id, credits_remaining, credits_used, job_description, resume, num_questions
		 FROM accounts WHERE id = ?`, accountID,
	).Scan(&acct.ID, &acct.CreditsRemaining, &acct.CreditsUsed,
		&acct.Materials.JobDescription, &acct.Materials.Resume, &acct.Materials.NumQuestions)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("get account: %w", err)
	}
	return acct, nil
}

// PutAccount implements ledger.AccountStore with an upsert.
func (d *DB) PutAccount(ctx context.Context, account domain.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}

	_, err := d.db.ExecContext(ctx,
		`INSERT INTO accounts (id, credits_remaining, credits_used, job_description, resume, num_questions)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			credits_remaining = excluded.credits_remaining,
			credits_used      = excluded.credits_used,
			job_description   = excluded.job_description,
			resume            = excluded.resume,
			num_questions     = excluded.num_questions`,
		account.ID, account.CreditsRemaining, account.CreditsUsed,
		account.Materials.JobDescription, account.Materials.Resume,
		account.Materials.NumQuestions)
	if err != nil {
		return fmt.Errorf("put account: %w", err)
	}
	return nil
}

// SaveMaterials implements ledger.AccountStore.
func (d *DB) SaveMaterials(
	ctx context.Context, accountID string, materials domain.BackgroundMaterials,
) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE accounts SET job_description = ?, resume = ?, num_questions = ? WHERE id = ?`,
		materials.JobDescription, materials.Resume, materials.NumQuestions, accountID)
	if err != nil {
		return fmt.Errorf("save materials: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// Save implements report.Store. The UNIQUE run_id constraint plus
// ON CONFLICT DO NOTHING gives first-write-wins: replays read back and
// return whatever the first writer persisted.
func (d *DB) Save(
	ctx context.Context, rep domain.PersistedReport,
) (domain.PersistedReport, error) {
	if err := rep.Validate(); err != nil {
		return domain.PersistedReport{}, err
	}

	details, err := json.Marshal(rep.Details)
	if err != nil {
		return domain.PersistedReport{}, fmt.Errorf("encode report details: %w", err)
	}

	if _, err := d.db.ExecContext(ctx,
		`INSERT INTO reports (report_id, run_id, account_id, grade, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO NOTHING`,
		rep.ReportID, rep.RunID, rep.AccountID, string(rep.Grade),
		string(details), rep.CreatedAt); err != nil {
		return domain.PersistedReport{}, fmt.Errorf("save report: %w", err)
	}

	return d.GetByRunID(ctx, rep.RunID)
}

// GetByRunID implements report.Store.
func (d *DB) GetByRunID(ctx context.Context, runID string) (domain.PersistedReport, error) {
	var (
		rep     domain.PersistedReport
		grade   string
		details string
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT report_id, run_id, account_id, grade, details, created_at
		 FROM reports WHERE run_id = ?`, runID,
	).Scan(&rep.ReportID, &rep.RunID, &rep.AccountID, &grade, &details, &rep.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PersistedReport{}, domain.ErrReportNotFound
	}
	if err != nil {
		return domain.PersistedReport{}, fmt.Errorf("get report: %w", err)
	}

	rep.Grade = domain.Grade(grade)
	if err := json.Unmarshal([]byte(details), &rep.Details); err != nil {
		return domain.PersistedReport{}, fmt.Errorf("decode report details: %w", err)
	}
	return rep, nil
}

// GetByID implements report.Store.
func (d *DB) GetByID(ctx context.Context, reportID string) (domain.PersistedReport, error) {
	var (
		rep     domain.PersistedReport
		grade   string
		details string
	)
	err := d.db.QueryRowContext(ctx,
		`SELECT report_id, run_id, account_id, grade, details, created_at
		 FROM reports WHERE report_id = ?`, reportID,
	).Scan(&rep.ReportID, &rep.RunID, &rep.AccountID, &grade, &details, &rep.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PersistedReport{}, domain.ErrReportNotFound
	}
	if err != nil {
		return domain.PersistedReport{}, fmt.Errorf("get report: %w", err)
	}

	rep.Grade = domain.Grade(grade)
	if err := json.Unmarshal([]byte(details), &rep.Details); err != nil {
		return domain.PersistedReport{}, fmt.Errorf("decode report details: %w", err)
	}
	return rep, nil
}

// ListByAccount implements report.Store, newest first.
func (d *DB) ListByAccount(
	ctx context.Context, accountID string,
) ([]domain.PersistedReport, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT report_id, run_id, account_id, grade, details, created_at
		 FROM reports WHERE account_id = ? ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []domain.PersistedReport
	for rows.Next() {
		var (
			rep     domain.PersistedReport
			grade   string
			details string
		)
		if err := rows.Scan(&rep.ReportID, &rep.RunID, &rep.AccountID,
			&grade, &details, &rep.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		rep.Grade = domain.Grade(grade)
		if err := json.Unmarshal([]byte(details), &rep.Details); err != nil {
			return nil, fmt.Errorf("decode report details: %w", err)
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

// Append implements oracle.AuditLog.
func (d *DB) Append(ctx context.Context, rec oracle.AuditRecord) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO audit_log (account_id, run_id, type, details, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.AccountID, rec.RunID, rec.Type, string(rec.Details), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}
	return nil
}
