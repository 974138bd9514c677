// Package sqlite persists ledger state in a SQLite database. All balances
// are stored as exact decimal strings and timestamps as unix milliseconds.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"tally/assets"
	"tally/internal/core"
)

type Repository struct {
	db *sql.DB
}

// New opens the database at dbPath and runs pending migrations.
func New(dbPath string) (*Repository, error) {
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent propagation.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// RunTx executes fn inside a single transaction. Nested calls reuse the
// transaction already carried by the context.
func (r *Repository) RunTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin transaction", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit transaction", err)
	}
	return nil
}

func (r *Repository) conn(ctx context.Context) dbtx {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return r.db
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", core.ErrStorage, op, err)
}

// --- snapshots ---

const snapshotColumns = "account, at_ms, balance, txn_id"

func scanSnapshot(row interface{ Scan(...any) error }) (*core.Snapshot, error) {
	var (
		s    core.Snapshot
		atMS int64
		bal  string
	)
	if err := row.Scan(&s.Account, &atMS, &bal, &s.TxnID); err != nil {
		return nil, err
	}
	balance, err := decimal.NewFromString(bal)
	if err != nil {
		return nil, fmt.Errorf("parse balance %q: %w", bal, err)
	}
	s.At = time.UnixMilli(atMS).UTC()
	s.Balance = balance
	return &s, nil
}

func (r *Repository) querySnapshots(ctx context.Context, op, query string, args ...any) ([]core.Snapshot, error) {
	rows, err := r.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var out []core.Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

func (r *Repository) LatestBefore(ctx context.Context, namespace, account string, at time.Time) (*core.Snapshot, error) {
	row := r.conn(ctx).QueryRowContext(ctx,
		"SELECT "+snapshotColumns+" FROM snapshots WHERE namespace = ? AND account = ? AND at_ms < ? ORDER BY at_ms DESC, id DESC LIMIT 1",
		namespace, account, at.UnixMilli())
	s, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("latest snapshot before", err)
	}
	return s, nil
}

func (r *Repository) RangeAfter(ctx context.Context, namespace, account string, at time.Time) ([]core.Snapshot, error) {
	return r.querySnapshots(ctx, "snapshots after",
		"SELECT "+snapshotColumns+" FROM snapshots WHERE namespace = ? AND account = ? AND at_ms > ? ORDER BY at_ms, id",
		namespace, account, at.UnixMilli())
}

func (r *Repository) Put(ctx context.Context, namespace string, snapshot core.Snapshot) error {
	_, err := r.conn(ctx).ExecContext(ctx,
		"INSERT INTO snapshots (namespace, account, at_ms, balance, txn_id) VALUES (?, ?, ?, ?, ?)",
		namespace, snapshot.Account, snapshot.At.UnixMilli(), snapshot.Balance.String(), snapshot.TxnID)
	if err != nil {
		return storageErr("put snapshot", err)
	}
	return nil
}

func (r *Repository) ShiftAfter(ctx context.Context, namespace, account string, at time.Time, delta decimal.Decimal) error {
	rows, err := r.conn(ctx).QueryContext(ctx,
		"SELECT id, balance FROM snapshots WHERE namespace = ? AND account = ? AND at_ms > ?",
		namespace, account, at.UnixMilli())
	if err != nil {
		return storageErr("shift snapshots", err)
	}

	type shifted struct {
		id      int64
		balance decimal.Decimal
	}
	var pending []shifted
	for rows.Next() {
		var (
			id  int64
			bal string
		)
		if err := rows.Scan(&id, &bal); err != nil {
			rows.Close()
			return storageErr("shift snapshots", err)
		}
		balance, err := decimal.NewFromString(bal)
		if err != nil {
			rows.Close()
			return storageErr("shift snapshots", fmt.Errorf("parse balance %q: %w", bal, err))
		}
		pending = append(pending, shifted{id: id, balance: balance.Add(delta)})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return storageErr("shift snapshots", err)
	}
	rows.Close()

	for _, p := range pending {
		if _, err := r.conn(ctx).ExecContext(ctx,
			"UPDATE snapshots SET balance = ? WHERE id = ?", p.balance.String(), p.id); err != nil {
			return storageErr("shift snapshots", err)
		}
	}
	return nil
}

func (r *Repository) ByTag(ctx context.Context, namespace, txnID string) ([]core.Snapshot, error) {
	if txnID == "" {
		return nil, nil
	}
	return r.querySnapshots(ctx, "snapshots by tag",
		"SELECT "+snapshotColumns+" FROM snapshots WHERE namespace = ? AND txn_id = ? ORDER BY account",
		namespace, txnID)
}

func (r *Repository) DeleteByTag(ctx context.Context, namespace, txnID string) error {
	if txnID == "" {
		return nil
	}
	if _, err := r.conn(ctx).ExecContext(ctx,
		"DELETE FROM snapshots WHERE namespace = ? AND txn_id = ?", namespace, txnID); err != nil {
		return storageErr("delete snapshots by tag", err)
	}
	return nil
}

func (r *Repository) Latest(ctx context.Context, namespace, account string) (*core.Snapshot, error) {
	row := r.conn(ctx).QueryRowContext(ctx,
		"SELECT "+snapshotColumns+" FROM snapshots WHERE namespace = ? AND account = ? ORDER BY at_ms DESC, id DESC LIMIT 1",
		namespace, account)
	s, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("latest snapshot", err)
	}
	return s, nil
}

func (r *Repository) History(ctx context.Context, namespace, account string) ([]core.Snapshot, error) {
	return r.querySnapshots(ctx, "snapshot history",
		"SELECT "+snapshotColumns+" FROM snapshots WHERE namespace = ? AND account = ? ORDER BY at_ms, id",
		namespace, account)
}

func (r *Repository) Accounts(ctx context.Context, namespace string) ([]string, error) {
	rows, err := r.conn(ctx).QueryContext(ctx,
		"SELECT DISTINCT account FROM snapshots WHERE namespace = ? ORDER BY account", namespace)
	if err != nil {
		return nil, storageErr("list accounts", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, storageErr("list accounts", err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list accounts", err)
	}
	return out, nil
}

func (r *Repository) Relabel(ctx context.Context, namespace, oldName, newName string) error {
	if _, err := r.conn(ctx).ExecContext(ctx,
		"UPDATE snapshots SET account = ? WHERE namespace = ? AND account = ?",
		newName, namespace, oldName); err != nil {
		return storageErr("relabel snapshots", err)
	}
	return nil
}

func (r *Repository) DeleteAccount(ctx context.Context, namespace, account string) error {
	if _, err := r.conn(ctx).ExecContext(ctx,
		"DELETE FROM snapshots WHERE namespace = ? AND account = ?", namespace, account); err != nil {
		return storageErr("delete account snapshots", err)
	}
	return nil
}

// --- transactions ---

const txnColumns = "id, kind, at_ms, amount, account, account_to, category_id, subcategory_id"

func scanTxn(row interface{ Scan(...any) error }) (*core.Transaction, error) {
	var (
		t             core.Transaction
		kind          string
		atMS          int64
		amount        string
		account       string
		accountTo     string
		categoryID    int
		subcategoryID int
	)
	if err := row.Scan(&t.ID, &kind, &atMS, &amount, &account, &accountTo, &categoryID, &subcategoryID); err != nil {
		return nil, err
	}
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	t.Date = time.UnixMilli(atMS).UTC()
	t.Amount = amt

	switch core.Kind(kind) {
	case core.KindIncome:
		t.Detail = core.Income{Account: account, CategoryID: categoryID, SubcategoryID: subcategoryID}
	case core.KindExpense:
		t.Detail = core.Expense{Account: account, CategoryID: categoryID, SubcategoryID: subcategoryID}
	case core.KindTransfer:
		t.Detail = core.Transfer{From: account, To: accountTo}
	default:
		return nil, fmt.Errorf("unknown transaction kind %q", kind)
	}
	return &t, nil
}

func txnColumnsValues(t core.Transaction) (kind, account, accountTo string, categoryID, subcategoryID int) {
	switch d := t.Detail.(type) {
	case core.Income:
		return string(core.KindIncome), d.Account, "", d.CategoryID, d.SubcategoryID
	case core.Expense:
		return string(core.KindExpense), d.Account, "", d.CategoryID, d.SubcategoryID
	case core.Transfer:
		return string(core.KindTransfer), d.From, d.To, 0, 0
	}
	return "", "", "", 0, 0
}

func (r *Repository) queryTxns(ctx context.Context, op, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

func (r *Repository) Insert(ctx context.Context, namespace string, t core.Transaction) error {
	kind, account, accountTo, categoryID, subcategoryID := txnColumnsValues(t)
	_, err := r.conn(ctx).ExecContext(ctx,
		"INSERT INTO transactions (namespace, id, kind, at_ms, amount, account, account_to, category_id, subcategory_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		namespace, t.ID, kind, t.Date.UnixMilli(), t.Amount.String(), account, accountTo, categoryID, subcategoryID)
	if err != nil {
		return storageErr("insert transaction", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, namespace, id string) (*core.Transaction, error) {
	row := r.conn(ctx).QueryRowContext(ctx,
		"SELECT "+txnColumns+" FROM transactions WHERE namespace = ? AND id = ?", namespace, id)
	t, err := scanTxn(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get transaction", err)
	}
	return t, nil
}

func (r *Repository) DeleteByID(ctx context.Context, namespace, id string) error {
	if _, err := r.conn(ctx).ExecContext(ctx,
		"DELETE FROM transactions WHERE namespace = ? AND id = ?", namespace, id); err != nil {
		return storageErr("delete transaction", err)
	}
	return nil
}

func (r *Repository) Range(ctx context.Context, namespace string, start, end time.Time) ([]core.Transaction, error) {
	return r.queryTxns(ctx, "transactions in range",
		"SELECT "+txnColumns+" FROM transactions WHERE namespace = ? AND at_ms >= ? AND at_ms <= ? ORDER BY at_ms DESC, id DESC",
		namespace, start.UnixMilli(), end.UnixMilli())
}

func (r *Repository) All(ctx context.Context, namespace string) ([]core.Transaction, error) {
	return r.queryTxns(ctx, "all transactions",
		"SELECT "+txnColumns+" FROM transactions WHERE namespace = ? ORDER BY at_ms, id", namespace)
}

func (r *Repository) Referencing(ctx context.Context, namespace, account string) ([]core.Transaction, error) {
	return r.queryTxns(ctx, "transactions referencing account",
		"SELECT "+txnColumns+" FROM transactions WHERE namespace = ? AND (account = ? OR (kind = 'transfer' AND account_to = ?)) ORDER BY at_ms, id",
		namespace, account, account)
}

func (r *Repository) RelabelAccount(ctx context.Context, namespace, oldName, newName string) error {
	if _, err := r.conn(ctx).ExecContext(ctx,
		"UPDATE transactions SET account = ? WHERE namespace = ? AND account = ?",
		newName, namespace, oldName); err != nil {
		return storageErr("relabel transactions", err)
	}
	if _, err := r.conn(ctx).ExecContext(ctx,
		"UPDATE transactions SET account_to = ? WHERE namespace = ? AND kind = 'transfer' AND account_to = ?",
		newName, namespace, oldName); err != nil {
		return storageErr("relabel transactions", err)
	}
	return nil
}

func (r *Repository) DeleteByPrimaryAccount(ctx context.Context, namespace, account string) error {
	if _, err := r.conn(ctx).ExecContext(ctx,
		"DELETE FROM transactions WHERE namespace = ? AND account = ?", namespace, account); err != nil {
		return storageErr("delete transactions for account", err)
	}
	return nil
}

// --- categories ---

func (r *Repository) Taxonomy(ctx context.Context, namespace string, flow core.Flow) ([]core.Category, error) {
	var doc string
	err := r.conn(ctx).QueryRowContext(ctx,
		"SELECT document FROM taxonomies WHERE namespace = ? AND flow = ?",
		namespace, string(flow)).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		// Unseeded namespaces fall back to the built-in taxonomy.
		taxonomy, err := core.ParseTaxonomy(assets.DefaultCategories)
		if err != nil {
			return nil, err
		}
		return taxonomy[flow], nil
	}
	if err != nil {
		return nil, storageErr("load taxonomy", err)
	}

	var categories []core.Category
	if err := json.Unmarshal([]byte(doc), &categories); err != nil {
		return nil, storageErr("load taxonomy", err)
	}
	return categories, nil
}

func (r *Repository) Seed(ctx context.Context, namespace string) error {
	taxonomy, err := core.ParseTaxonomy(assets.DefaultCategories)
	if err != nil {
		return err
	}
	for flow, categories := range taxonomy {
		doc, err := json.Marshal(categories)
		if err != nil {
			return storageErr("seed taxonomy", err)
		}
		if _, err := r.conn(ctx).ExecContext(ctx,
			"INSERT OR IGNORE INTO taxonomies (namespace, flow, document) VALUES (?, ?, ?)",
			namespace, string(flow), string(doc)); err != nil {
			return storageErr("seed taxonomy", err)
		}
	}
	return nil
}
