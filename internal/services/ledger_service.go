// Package services orchestrates the ledger engine, the reporter, the event
// publisher and the report cache behind one facade. Commands and workers talk
// to this package, never to the engine or the stores directly.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tally/internal/amqp"
	"tally/internal/cache"
	"tally/internal/core"
	"tally/internal/ledger"
	"tally/internal/log"
	"tally/internal/report"
	"tally/internal/store"
)

// EventPublisher announces completed mutations. A nil publisher disables
// events; a publish failure never fails the mutation.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, event *amqp.LedgerEvent) error
}

// TransactionRequest carries the raw fields of a new transaction as a caller
// submits them. Amount arrives as a string and is parsed, not trusted.
type TransactionRequest struct {
	Kind   core.Kind
	Date   time.Time
	Amount string

	// Income and expense.
	Account       string
	CategoryID    int
	SubcategoryID int

	// Transfer.
	From string
	To   string
}

type Option func(*LedgerService)

// WithCascadeDelete is forwarded to the engine.
func WithCascadeDelete(enabled bool) Option {
	return func(s *LedgerService) { s.engineOpts = append(s.engineOpts, ledger.WithCascadeDelete(enabled)) }
}

// WithReportCache sizes the per-namespace report cache. Defaults are small;
// reports recompute cheaply from the store.
func WithReportCache(size int, ttl time.Duration) Option {
	return func(s *LedgerService) { s.cacheSize, s.cacheTTL = size, ttl }
}

type LedgerService struct {
	engine   *ledger.Engine
	reporter *report.Reporter
	snaps    store.SnapshotStore
	txns     store.TransactionStore
	cats     store.CategoryStore
	events   EventPublisher

	engineOpts []ledger.Option
	cacheSize  int
	cacheTTL   time.Duration

	netWorth  *cache.LRUCache[report.Series]
	summaries *cache.LRUCache[report.Summary]
	cacheMgr  *cache.Manager
}

func NewLedgerService(snaps store.SnapshotStore, txns store.TransactionStore, cats store.CategoryStore, events EventPublisher, opts ...Option) *LedgerService {
	s := &LedgerService{
		snaps:     snaps,
		txns:      txns,
		cats:      cats,
		events:    events,
		cacheSize: 128,
		cacheTTL:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.engine = ledger.New(snaps, txns, s.engineOpts...)
	s.reporter = report.New(snaps, txns, cats)
	s.netWorth = cache.NewLRUCache[report.Series](s.cacheSize, s.cacheTTL)
	s.summaries = cache.NewLRUCache[report.Summary](s.cacheSize, s.cacheTTL)
	s.cacheMgr = cache.NewManager()
	s.cacheMgr.Register(s.netWorth)
	s.cacheMgr.Register(s.summaries)
	s.cacheMgr.StartCleanup(time.Minute)
	return s
}

// Close stops the cache cleanup routine.
func (s *LedgerService) Close() {
	s.cacheMgr.Stop()
}

// --- accounts ---

// AddAccount creates an account with a declared opening balance and makes
// sure the namespace has a category taxonomy to classify against.
func (s *LedgerService) AddAccount(ctx context.Context, ns, name, balance string, at time.Time) error {
	b, err := core.ParseBalance(balance)
	if err != nil {
		return err
	}
	if err := s.cats.Seed(ctx, ns); err != nil {
		return fmt.Errorf("seed taxonomy: %w", err)
	}
	if err := s.engine.DeclareBaseline(ctx, ns, name, b, at); err != nil {
		return err
	}
	s.invalidate(ns)
	return nil
}

// EditAccount renames an account and/or restates its balance with a new
// baseline dated at. An empty balance leaves the balance unchanged; an edit
// that changes neither name nor balance is rejected.
func (s *LedgerService) EditAccount(ctx context.Context, ns, oldName, newName, balance string, at time.Time) error {
	var b decimal.Decimal
	if balance == "" {
		// Carry the current balance through so only the rename takes effect.
		latest, err := s.snaps.Latest(ctx, ns, oldName)
		if err != nil {
			return fmt.Errorf("check account: %w", err)
		}
		if latest != nil {
			b = latest.Balance
		}
	} else {
		parsed, err := core.ParseBalance(balance)
		if err != nil {
			return err
		}
		b = parsed
	}
	if err := s.engine.Rename(ctx, ns, oldName, newName, b, at); err != nil {
		return err
	}
	s.invalidate(ns)
	s.publish(ctx, amqp.NewLedgerEvent(amqp.EventAccountEdited, ns, []string{newName}, ""))
	return nil
}

// DeleteAccount removes an account, its snapshots and its transactions.
func (s *LedgerService) DeleteAccount(ctx context.Context, ns, name string) error {
	if err := s.engine.DeleteAccount(ctx, ns, name); err != nil {
		return err
	}
	s.invalidate(ns)
	s.publish(ctx, amqp.NewLedgerEvent(amqp.EventAccountDeleted, ns, []string{name}, ""))
	return nil
}

// Overview returns every account's current balance plus a leading total row.
func (s *LedgerService) Overview(ctx context.Context, ns string) ([]core.Account, error) {
	return s.reporter.AccountsOverview(ctx, ns)
}

// --- transactions ---

// AddTransaction validates, records and applies a new transaction, returning
// its generated id. Accounts must already exist and category ids must resolve
// in the namespace taxonomy.
func (s *LedgerService) AddTransaction(ctx context.Context, ns string, req TransactionRequest) (string, error) {
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		return "", err
	}

	txn := core.Transaction{
		ID:     uuid.NewString(),
		Date:   req.Date,
		Amount: amount,
	}
	switch req.Kind {
	case core.KindIncome:
		txn.Detail = core.Income{Account: req.Account, CategoryID: req.CategoryID, SubcategoryID: req.SubcategoryID}
	case core.KindExpense:
		txn.Detail = core.Expense{Account: req.Account, CategoryID: req.CategoryID, SubcategoryID: req.SubcategoryID}
	case core.KindTransfer:
		txn.Detail = core.Transfer{From: req.From, To: req.To}
	default:
		return "", fmt.Errorf("%w: unknown transaction kind %q", core.ErrInvalidInput, req.Kind)
	}

	if err := txn.Validate(); err != nil {
		return "", err
	}
	if err := s.checkAccountsExist(ctx, ns, txn.Accounts()); err != nil {
		return "", err
	}
	if err := s.checkCategory(ctx, ns, txn); err != nil {
		return "", err
	}

	if err := s.engine.Apply(ctx, ns, txn); err != nil {
		return "", err
	}
	s.invalidate(ns)
	s.publish(ctx, amqp.NewLedgerEvent(amqp.EventTransactionApplied, ns, txn.Accounts(), txn.ID))
	return txn.ID, nil
}

// DeleteTransaction reverses a transaction by id.
func (s *LedgerService) DeleteTransaction(ctx context.Context, ns, id string) error {
	txn, err := s.engine.Reverse(ctx, ns, id)
	if err != nil {
		return err
	}
	s.invalidate(ns)
	s.publish(ctx, amqp.NewLedgerEvent(amqp.EventTransactionReversed, ns, txn.Accounts(), id))
	return nil
}

// Transactions lists transactions in [start, end], newest first.
func (s *LedgerService) Transactions(ctx context.Context, ns string, start, end time.Time) ([]core.Transaction, error) {
	return s.txns.Range(ctx, ns, start, end)
}

func (s *LedgerService) checkAccountsExist(ctx context.Context, ns string, accounts []string) error {
	for _, account := range accounts {
		latest, err := s.snaps.Latest(ctx, ns, account)
		if err != nil {
			return fmt.Errorf("check account: %w", err)
		}
		if latest == nil {
			return fmt.Errorf("%w: account %q", core.ErrNotFound, account)
		}
	}
	return nil
}

func (s *LedgerService) checkCategory(ctx context.Context, ns string, txn core.Transaction) error {
	var categoryID, subcategoryID int
	switch d := txn.Detail.(type) {
	case core.Income:
		categoryID, subcategoryID = d.CategoryID, d.SubcategoryID
	case core.Expense:
		categoryID, subcategoryID = d.CategoryID, d.SubcategoryID
	default:
		return nil // transfers carry no category
	}

	cats, err := s.cats.Taxonomy(ctx, ns, txn.Flow())
	if err != nil {
		return fmt.Errorf("load taxonomy: %w", err)
	}
	if !core.HasCategory(cats, categoryID) {
		return fmt.Errorf("%w: category %d", core.ErrNotFound, categoryID)
	}
	if !core.HasSubcategory(cats, categoryID, subcategoryID) {
		return fmt.Errorf("%w: subcategory %d of category %d", core.ErrNotFound, subcategoryID, categoryID)
	}
	return nil
}

// --- reports ---

// NetWorth returns the cached daily net worth series for the namespace.
func (s *LedgerService) NetWorth(ctx context.Context, ns string) (report.Series, error) {
	return s.netWorth.GetOrCompute(ns, func() (report.Series, error) {
		return s.reporter.NetWorthSeries(ctx, ns)
	})
}

// Flows returns daily income/expense totals over [start, end].
func (s *LedgerService) Flows(ctx context.Context, ns string, start, end time.Time) (report.DailyFlows, error) {
	return s.reporter.DailyFlows(ctx, ns, start, end)
}

// Breakdown groups expenses by category for one month, or the whole year when
// month is zero.
func (s *LedgerService) Breakdown(ctx context.Context, ns string, month time.Month, year int) ([]report.CategoryGroup, error) {
	return s.reporter.CategoryBreakdown(ctx, ns, month, year)
}

// Summary returns the cached savings figures for the namespace.
func (s *LedgerService) Summary(ctx context.Context, ns string) (report.Summary, error) {
	return s.summaries.GetOrCompute(ns, func() (report.Summary, error) {
		return s.reporter.Summary(ctx, ns)
	})
}

// Years lists every year with recorded activity, current year included.
func (s *LedgerService) Years(ctx context.Context, ns string) ([]int, error) {
	return s.reporter.DistinctYears(ctx, ns)
}

// Categories returns the taxonomy forest for one flow direction.
func (s *LedgerService) Categories(ctx context.Context, ns string, flow core.Flow) ([]core.Category, error) {
	return s.cats.Taxonomy(ctx, ns, flow)
}

// FlatCategories flattens the taxonomy for pickers: every subcategory id with
// its full display path.
func (s *LedgerService) FlatCategories(ctx context.Context, ns string, flow core.Flow) ([]core.FlatCategory, error) {
	cats, err := s.cats.Taxonomy(ctx, ns, flow)
	if err != nil {
		return nil, err
	}
	return core.Flatten(cats), nil
}

// --- internals ---

func (s *LedgerService) invalidate(ns string) {
	s.netWorth.Delete(ns)
	s.summaries.Delete(ns)
}

func (s *LedgerService) publish(ctx context.Context, event *amqp.LedgerEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishLedgerEvent(ctx, event); err != nil {
		slog.ErrorContext(ctx, "failed to publish ledger event",
			log.FieldComponent, log.ComponentService,
			log.FieldError, err,
			log.FieldKind, event.Kind,
			log.FieldNamespace, event.Namespace)
	}
}
