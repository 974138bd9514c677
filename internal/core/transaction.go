package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ExternalAccount is the pseudo-account representing money entering or
// leaving the tracked system through a transfer. It participates in transfers
// but never accumulates snapshot history of its own.
const ExternalAccount = "External"

// Flow distinguishes the two directions money can move relative to the user,
// and selects which half of the category taxonomy applies.
type Flow string

const (
	FlowIn  Flow = "in"
	FlowOut Flow = "out"
)

// Kind is the transaction type tag.
type Kind string

const (
	KindIncome   Kind = "income"
	KindExpense  Kind = "expense"
	KindTransfer Kind = "transfer"
)

// Detail is the kind-specific payload of a transaction. Exactly one of
// Income, Expense or Transfer; consumers switch exhaustively on the concrete
// type rather than probing optional fields.
type Detail interface {
	Kind() Kind
}

// Income credits an account, classified by a category/subcategory pair.
type Income struct {
	Account       string
	CategoryID    int
	SubcategoryID int
}

// Expense debits an account, classified by a category/subcategory pair.
type Expense struct {
	Account       string
	CategoryID    int
	SubcategoryID int
}

// Transfer moves money between two accounts. Either side (but not both) may
// be the External pseudo-account.
type Transfer struct {
	From string
	To   string
}

func (Income) Kind() Kind   { return KindIncome }
func (Expense) Kind() Kind  { return KindExpense }
func (Transfer) Kind() Kind { return KindTransfer }

// Transaction is an immutable ledger entry. It is created once and removed
// by reversal; there is no edit operation.
type Transaction struct {
	ID     string
	Date   time.Time
	Amount decimal.Decimal
	Detail Detail
}

// Validate checks the fields shared by every transaction kind plus the
// kind-specific constraints that hold regardless of store state.
func (t Transaction) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: missing transaction id", ErrInvalidInput)
	}
	if t.Date.IsZero() {
		return fmt.Errorf("%w: missing transaction date", ErrInvalidInput)
	}
	if !t.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidInput, t.Amount)
	}
	switch d := t.Detail.(type) {
	case Income:
		if d.Account == "" {
			return fmt.Errorf("%w: missing account", ErrInvalidInput)
		}
	case Expense:
		if d.Account == "" {
			return fmt.Errorf("%w: missing account", ErrInvalidInput)
		}
	case Transfer:
		if d.From == "" || d.To == "" {
			return fmt.Errorf("%w: transfer needs both accounts", ErrInvalidInput)
		}
		if d.From == d.To {
			return fmt.Errorf("%w: cannot transfer to the same account", ErrConflict)
		}
		if d.From == ExternalAccount && d.To == ExternalAccount {
			return fmt.Errorf("%w: only one side of a transfer may be %s", ErrConflict, ExternalAccount)
		}
	default:
		return fmt.Errorf("%w: unknown transaction detail %T", ErrInvalidInput, t.Detail)
	}
	return nil
}

// Flow maps the transaction kind to the category taxonomy it draws from.
// Transfers carry no category and report FlowOut by convention.
func (t Transaction) Flow() Flow {
	if t.Detail.Kind() == KindIncome {
		return FlowIn
	}
	return FlowOut
}

// Accounts returns every real account the transaction touches, External
// excluded.
func (t Transaction) Accounts() []string {
	var out []string
	switch d := t.Detail.(type) {
	case Income:
		out = append(out, d.Account)
	case Expense:
		out = append(out, d.Account)
	case Transfer:
		if d.From != ExternalAccount {
			out = append(out, d.From)
		}
		if d.To != ExternalAccount {
			out = append(out, d.To)
		}
	}
	return out
}

// SignedAmount returns the balance delta this transaction contributes to the
// given account: positive for money flowing in, negative for money flowing
// out, zero when the account is not involved.
func (t Transaction) SignedAmount(account string) decimal.Decimal {
	switch d := t.Detail.(type) {
	case Income:
		if d.Account == account {
			return t.Amount
		}
	case Expense:
		if d.Account == account {
			return t.Amount.Neg()
		}
	case Transfer:
		if d.From == account {
			return t.Amount.Neg()
		}
		if d.To == account {
			return t.Amount
		}
	}
	return decimal.Zero
}
