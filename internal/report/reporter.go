// Package report computes read-side aggregates from the snapshot and
// transaction history: net worth over time, daily income/expense flows,
// category breakdowns and savings summaries. Reads never block writes; a
// momentarily stale result is acceptable.
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"tally/internal/core"
	"tally/internal/store"
)

const dayFormat = "2006-01-02"

type (
	// Point is one chart sample: a calendar day and a value rounded to
	// two decimals.
	Point struct {
		Date  string  `json:"x"`
		Value float64 `json:"y"`
	}

	// Series is a named sequence of daily points.
	Series struct {
		Name   string  `json:"name"`
		Points []Point `json:"data"`
	}

	// DailyFlows holds parallel daily income and expense totals for a
	// date range.
	DailyFlows struct {
		Labels  []string  `json:"labels"`
		Income  []float64 `json:"income"`
		Expense []float64 `json:"expense"`
	}

	// SubcategoryAmount is one slice of a category group.
	SubcategoryAmount struct {
		Name   string  `json:"name"`
		Amount float64 `json:"amount"`
	}

	// CategoryGroup aggregates expenses of one category, split by
	// subcategory and sorted descending by total.
	CategoryGroup struct {
		Name          string              `json:"name"`
		Total         float64             `json:"total"`
		Subcategories []SubcategoryAmount `json:"subcategories"`
	}

	// Summary bundles the all-time savings figures.
	Summary struct {
		SavingsRate        float64 `json:"saving_rate"`
		MeanMonthlyExpense float64 `json:"mean_monthly_expense"`
		FIRERatio          float64 `json:"fire_ratio"`
	}
)

// Reporter reads the stores directly; it shares no state with the engine and
// tolerates concurrent mutations.
type Reporter struct {
	snaps store.SnapshotStore
	txns  store.TransactionStore
	cats  store.CategoryStore
}

func New(snaps store.SnapshotStore, txns store.TransactionStore, cats store.CategoryStore) *Reporter {
	return &Reporter{snaps: snaps, txns: txns, cats: cats}
}

// NetWorthSeries sums every account's balance per calendar day into one
// "Total" series. Each account contributes its last snapshot per day,
// forward-filled up to the newest day seen across all accounts.
func (r *Reporter) NetWorthSeries(ctx context.Context, ns string) (Series, error) {
	accounts, err := r.snaps.Accounts(ctx, ns)
	if err != nil {
		return Series{}, fmt.Errorf("list accounts: %w", err)
	}

	perAccount := make([]map[string]decimal.Decimal, 0, len(accounts))
	firstDays := make([]time.Time, 0, len(accounts))
	var maxDay time.Time

	for _, account := range accounts {
		history, err := r.snaps.History(ctx, ns, account)
		if err != nil {
			return Series{}, fmt.Errorf("history of %s: %w", account, err)
		}
		if len(history) == 0 {
			continue
		}
		daily := make(map[string]decimal.Decimal)
		first := day(history[0].At)
		for _, snap := range history {
			d := day(snap.At)
			daily[d.Format(dayFormat)] = snap.Balance // later snapshots win
			if d.Before(first) {
				first = d
			}
			if d.After(maxDay) {
				maxDay = d
			}
		}
		perAccount = append(perAccount, daily)
		firstDays = append(firstDays, first)
	}

	if len(perAccount) == 0 {
		return Series{Name: "Total"}, nil
	}

	totals := make(map[string]decimal.Decimal)
	for i, daily := range perAccount {
		balance := decimal.Zero
		for d := firstDays[i]; !d.After(maxDay); d = d.AddDate(0, 0, 1) {
			key := d.Format(dayFormat)
			if b, ok := daily[key]; ok {
				balance = b
			}
			totals[key] = totals[key].Add(balance)
		}
	}

	days := make([]string, 0, len(totals))
	for d := range totals {
		days = append(days, d)
	}
	sort.Strings(days)

	points := make([]Point, 0, len(days))
	for _, d := range days {
		points = append(points, Point{Date: d, Value: core.Round2(totals[d])})
	}
	return Series{Name: "Total", Points: points}, nil
}

// DailyFlows sums income and expense amounts per day over [start, end].
// Transfers move money between tracked accounts and count as neither.
func (r *Reporter) DailyFlows(ctx context.Context, ns string, start, end time.Time) (DailyFlows, error) {
	start, end = day(start), day(end)
	if end.Before(start) {
		return DailyFlows{}, fmt.Errorf("%w: end before start", core.ErrInvalidInput)
	}

	txns, err := r.txns.Range(ctx, ns, start, end.AddDate(0, 0, 1).Add(-time.Nanosecond))
	if err != nil {
		return DailyFlows{}, fmt.Errorf("load transactions: %w", err)
	}

	income := make(map[string]decimal.Decimal)
	expense := make(map[string]decimal.Decimal)
	for _, txn := range txns {
		key := day(txn.Date).Format(dayFormat)
		switch txn.Detail.(type) {
		case core.Income:
			income[key] = income[key].Add(txn.Amount)
		case core.Expense:
			expense[key] = expense[key].Add(txn.Amount)
		}
	}

	var flows DailyFlows
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := d.Format(dayFormat)
		flows.Labels = append(flows.Labels, d.Format("01/02/2006"))
		flows.Income = append(flows.Income, core.Round2(income[key]))
		flows.Expense = append(flows.Expense, core.Round2(expense[key]))
	}
	return flows, nil
}

// CategoryBreakdown groups expense totals by category and subcategory over
// one month, or the whole year when month is zero. Numeric ids resolve to
// display names through the taxonomy; groups come back sorted descending by
// category total.
func (r *Reporter) CategoryBreakdown(ctx context.Context, ns string, month time.Month, year int) ([]CategoryGroup, error) {
	if year <= 0 || month < 0 || month > 12 {
		return nil, fmt.Errorf("%w: month=%d year=%d", core.ErrInvalidInput, month, year)
	}

	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0).Add(-time.Nanosecond)
	if month != 0 {
		start = time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	}

	txns, err := r.txns.Range(ctx, ns, start, end)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	cats, err := r.cats.Taxonomy(ctx, ns, core.FlowOut)
	if err != nil {
		return nil, fmt.Errorf("load taxonomy: %w", err)
	}

	type key struct{ cat, sub int }
	sums := make(map[key]decimal.Decimal)
	catTotals := make(map[int]decimal.Decimal)
	for _, txn := range txns {
		expense, ok := txn.Detail.(core.Expense)
		if !ok {
			continue
		}
		k := key{expense.CategoryID, expense.SubcategoryID}
		sums[k] = sums[k].Add(txn.Amount)
		catTotals[expense.CategoryID] = catTotals[expense.CategoryID].Add(txn.Amount)
	}

	groups := make([]CategoryGroup, 0, len(catTotals))
	for catID, total := range catTotals {
		group := CategoryGroup{
			Name:  core.CategoryName(cats, catID),
			Total: core.Round2(total),
		}
		for k, amount := range sums {
			if k.cat != catID {
				continue
			}
			group.Subcategories = append(group.Subcategories, SubcategoryAmount{
				Name:   core.SubcategoryName(cats, k.cat, k.sub),
				Amount: core.Round2(amount),
			})
		}
		sort.Slice(group.Subcategories, func(i, j int) bool {
			if group.Subcategories[i].Amount != group.Subcategories[j].Amount {
				return group.Subcategories[i].Amount > group.Subcategories[j].Amount
			}
			return group.Subcategories[i].Name < group.Subcategories[j].Name
		})
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Total != groups[j].Total {
			return groups[i].Total > groups[j].Total
		}
		return groups[i].Name < groups[j].Name
	})
	return groups, nil
}

// SavingsRate is (totalIncome - totalExpense) / max(totalIncome, 1) over all
// time. The denominator floor guards the zero-income case.
func (r *Reporter) SavingsRate(ctx context.Context, ns string) (float64, error) {
	income, expense, _, err := r.flowTotals(ctx, ns)
	if err != nil {
		return 0, err
	}
	denom := income
	if denom.LessThan(decimal.NewFromInt(1)) {
		denom = decimal.NewFromInt(1)
	}
	return income.Sub(expense).Div(denom).InexactFloat64(), nil
}

// FIREProxy is totalBalance / (meanMonthlyExpense * 12 * 25), a coarse
// "years of expenses covered" heuristic. Without any expense transaction the
// mean is undefined and the proxy reports zero.
func (r *Reporter) FIREProxy(ctx context.Context, ns string) (float64, error) {
	mean, err := r.meanMonthlyExpense(ctx, ns)
	if err != nil {
		return 0, err
	}
	if mean.IsZero() {
		return 0, nil
	}

	accounts, err := r.AccountsOverview(ctx, ns)
	if err != nil {
		return 0, err
	}
	total := decimal.Zero
	if len(accounts) > 0 {
		total = accounts[0].Balance // "Total" row
	}
	target := mean.Mul(decimal.NewFromInt(12 * 25))
	return total.Div(target).InexactFloat64(), nil
}

// Summary bundles the savings rate, the mean monthly expense and the FIRE
// proxy into one read.
func (r *Reporter) Summary(ctx context.Context, ns string) (Summary, error) {
	rate, err := r.SavingsRate(ctx, ns)
	if err != nil {
		return Summary{}, err
	}
	mean, err := r.meanMonthlyExpense(ctx, ns)
	if err != nil {
		return Summary{}, err
	}
	fire, err := r.FIREProxy(ctx, ns)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		SavingsRate:        rate,
		MeanMonthlyExpense: core.Round2(mean),
		FIRERatio:          fire,
	}, nil
}

// AccountsOverview returns the latest balance per account preceded by a
// synthetic "Total" row carrying the sum of all balances and the newest
// update time.
func (r *Reporter) AccountsOverview(ctx context.Context, ns string) ([]core.Account, error) {
	names, err := r.snaps.Accounts(ctx, ns)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	total := core.Account{Name: "Total"}
	rows := make([]core.Account, 0, len(names)+1)
	for _, name := range names {
		latest, err := r.snaps.Latest(ctx, ns, name)
		if err != nil {
			return nil, fmt.Errorf("latest of %s: %w", name, err)
		}
		if latest == nil {
			continue
		}
		rows = append(rows, core.Account{Name: name, Balance: latest.Balance, LastUpdate: latest.At})
		total.Balance = total.Balance.Add(latest.Balance)
		if latest.At.After(total.LastUpdate) {
			total.LastUpdate = latest.At
		}
	}
	return append([]core.Account{total}, rows...), nil
}

// DistinctYears lists every year with at least one transaction, ascending,
// always including the current year.
func (r *Reporter) DistinctYears(ctx context.Context, ns string) ([]int, error) {
	txns, err := r.txns.All(ctx, ns)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	seen := map[int]bool{time.Now().UTC().Year(): true}
	for _, txn := range txns {
		seen[txn.Date.Year()] = true
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years, nil
}

func (r *Reporter) flowTotals(ctx context.Context, ns string) (income, expense decimal.Decimal, months map[string]bool, err error) {
	txns, err := r.txns.All(ctx, ns)
	if err != nil {
		return decimal.Zero, decimal.Zero, nil, fmt.Errorf("load transactions: %w", err)
	}
	months = make(map[string]bool)
	for _, txn := range txns {
		switch txn.Detail.(type) {
		case core.Income:
			income = income.Add(txn.Amount)
		case core.Expense:
			expense = expense.Add(txn.Amount)
			months[txn.Date.Format("2006-01")] = true
		}
	}
	return income, expense, months, nil
}

// meanMonthlyExpense averages expense totals over the distinct (year, month)
// buckets that contain at least one expense.
func (r *Reporter) meanMonthlyExpense(ctx context.Context, ns string) (decimal.Decimal, error) {
	_, expense, months, err := r.flowTotals(ctx, ns)
	if err != nil {
		return decimal.Zero, err
	}
	if len(months) == 0 {
		return decimal.Zero, nil
	}
	return expense.Div(decimal.NewFromInt(int64(len(months)))), nil
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
