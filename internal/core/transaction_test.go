package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func txn(detail Detail, amount string) Transaction {
	a, _ := decimal.NewFromString(amount)
	return Transaction{
		ID:     "t1",
		Date:   time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		Amount: a,
		Detail: detail,
	}
}

func TestTransactionValidate(t *testing.T) {
	cases := []struct {
		name string
		txn  Transaction
		err  error
	}{
		{"income ok", txn(Income{Account: "Checking", CategoryID: 1, SubcategoryID: 2}, "10"), nil},
		{"expense ok", txn(Expense{Account: "Checking", CategoryID: 1, SubcategoryID: 2}, "10"), nil},
		{"transfer ok", txn(Transfer{From: "Checking", To: "Savings"}, "10"), nil},
		{"transfer from external", txn(Transfer{From: ExternalAccount, To: "Savings"}, "10"), nil},
		{"zero amount", txn(Income{Account: "Checking"}, "0"), ErrInvalidInput},
		{"negative amount", txn(Expense{Account: "Checking"}, "-5"), ErrInvalidInput},
		{"missing account", txn(Income{}, "10"), ErrInvalidInput},
		{"transfer same account", txn(Transfer{From: "Checking", To: "Checking"}, "10"), ErrConflict},
		{"transfer both external", txn(Transfer{From: ExternalAccount, To: ExternalAccount}, "10"), ErrConflict},
		{"transfer missing side", txn(Transfer{From: "Checking"}, "10"), ErrInvalidInput},
	}
	for _, tc := range cases {
		err := tc.txn.Validate()
		if tc.err == nil && err != nil {
			t.Fatalf("%s: expected ok, got %v", tc.name, err)
		}
		if tc.err != nil && !errors.Is(err, tc.err) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.err, err)
		}
	}

	missing := txn(Income{Account: "Checking"}, "10")
	missing.ID = ""
	if err := missing.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for missing id, got %v", err)
	}
}

func TestTransactionAccounts(t *testing.T) {
	cases := []struct {
		txn  Transaction
		want []string
	}{
		{txn(Income{Account: "Checking"}, "10"), []string{"Checking"}},
		{txn(Transfer{From: "Checking", To: "Savings"}, "10"), []string{"Checking", "Savings"}},
		{txn(Transfer{From: ExternalAccount, To: "Savings"}, "10"), []string{"Savings"}},
		{txn(Transfer{From: "Checking", To: ExternalAccount}, "10"), []string{"Checking"}},
	}
	for i, tc := range cases {
		got := tc.txn.Accounts()
		if len(got) != len(tc.want) {
			t.Fatalf("case %d: expected %v, got %v", i, tc.want, got)
		}
		for j := range got {
			if got[j] != tc.want[j] {
				t.Fatalf("case %d: expected %v, got %v", i, tc.want, got)
			}
		}
	}
}

func TestSignedAmount(t *testing.T) {
	cases := []struct {
		txn     Transaction
		account string
		want    string
	}{
		{txn(Income{Account: "Checking"}, "10"), "Checking", "10"},
		{txn(Expense{Account: "Checking"}, "10"), "Checking", "-10"},
		{txn(Transfer{From: "Checking", To: "Savings"}, "10"), "Checking", "-10"},
		{txn(Transfer{From: "Checking", To: "Savings"}, "10"), "Savings", "10"},
		{txn(Income{Account: "Checking"}, "10"), "Other", "0"},
	}
	for i, tc := range cases {
		if got := tc.txn.SignedAmount(tc.account); got.String() != tc.want {
			t.Fatalf("case %d: expected %s, got %s", i, tc.want, got)
		}
	}
}

func TestTransactionFlow(t *testing.T) {
	if got := txn(Income{Account: "a"}, "1").Flow(); got != FlowIn {
		t.Fatalf("income flow: expected in, got %s", got)
	}
	if got := txn(Expense{Account: "a"}, "1").Flow(); got != FlowOut {
		t.Fatalf("expense flow: expected out, got %s", got)
	}
	if got := txn(Transfer{From: "a", To: "b"}, "1").Flow(); got != FlowOut {
		t.Fatalf("transfer flow: expected out, got %s", got)
	}
}
