package transfer

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"slotledger/internal/catalog"
	"slotledger/internal/core"
	"slotledger/internal/ledger"
	"slotledger/internal/ledger/memory"
	"slotledger/internal/log"
	"slotledger/internal/reconcile"
	"slotledger/internal/storage"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []core.LedgerEvent
	fail   bool
}

func (n *recordingNotifier) PublishLedgerEvent(_ context.Context, ev core.LedgerEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("broker down")
	}
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) types() []core.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]core.EventType, len(n.events))
	for i, ev := range n.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	engine   *Engine
	store    ledger.Store
	notifier *recordingNotifier
	account  core.Account
	food     core.SlotID
	trans    core.SlotID
	savings  core.SlotID
}

// newFixture links an account with balance 1,500,000 and commits
// Food 420,000, Transport 45,000 and Savings 800,000.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOn(t, memory.New())
}

// newSQLiteFixture is newFixture on a fresh SQLite file.
func newSQLiteFixture(t *testing.T) *fixture {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return newFixtureOn(t, repo)
}

func newFixtureOn(t *testing.T, store ledger.Store) *fixture {
	t.Helper()
	ctx := context.Background()
	n := &recordingNotifier{}
	e := New(store, catalog.Default(),
		WithNotifier(n),
		WithLogger(log.Discard()),
		WithClock(func() time.Time { return t0 }),
		WithLockTimeout(time.Second))

	acc, err := e.LinkAccount(ctx, "088", "110-222-333")
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if _, _, err := e.ApplyBalance(ctx, acc.ID, 1_500_000, t0); err != nil {
		t.Fatalf("apply balance: %v", err)
	}
	rec, err := e.CommitSlots(ctx, acc.ID, []SlotProposal{
		{CategoryCode: "FOOD", InitialBudget: 420_000},
		{CategoryCode: "TRANSPORT", InitialBudget: 45_000},
		{CategoryCode: "SAVINGS", InitialBudget: 800_000},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	f := &fixture{engine: e, store: store, notifier: n, account: acc}
	for _, s := range rec.Slots {
		switch s.CategoryCode {
		case "FOOD":
			f.food = s.ID
		case "TRANSPORT":
			f.trans = s.ID
		case "SAVINGS":
			f.savings = s.ID
		}
	}
	return f
}

func (f *fixture) rec(t *testing.T) reconcile.Reconciliation {
	t.Helper()
	rec, err := f.engine.Reconcile(context.Background(), f.account.ID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if err := reconcile.Verify(rec); err != nil {
		t.Fatalf("invariant broken: %v", err)
	}
	return rec
}

func (f *fixture) slot(t *testing.T, id core.SlotID) reconcile.SlotView {
	t.Helper()
	v, ok := f.rec(t).Find(id)
	if !ok {
		t.Fatalf("slot %d not found", id)
	}
	return v
}

func (f *fixture) ingest(t *testing.T, id core.TransactionID, slot core.SlotID, typ core.TransactionType, amount core.Money) {
	t.Helper()
	acc, _ := f.store.GetAccount(context.Background(), f.account.ID)
	post := acc.Balance + core.Transaction{Type: typ, Amount: amount}.Signed()
	_, err := f.engine.IngestTransaction(context.Background(), core.Transaction{
		ID: id, AccountID: f.account.ID, SlotID: slot, Type: typ, Amount: amount,
		PostBalance: post, OccurredAt: t0.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("ingest %s: %v", id, err)
	}
}

func TestCommittedScenarioUncategorizedRemainder(t *testing.T) {
	f := newFixture(t)
	rec := f.rec(t)
	if rec.Uncategorized.Remaining != 235_000 {
		t.Fatalf("uncategorized = %s, want 235,000", rec.Uncategorized.Remaining)
	}
	if rec.Account.Version != 2 {
		t.Fatalf("expected version 2 after balance and commit, got %d", rec.Account.Version)
	}
	hist, _ := f.store.ListHistory(context.Background(), f.account.ID, f.food)
	if len(hist) != 1 || hist[0].Reason != core.ReasonCommit || hist[0].NewBudget != 420_000 {
		t.Fatalf("unexpected commit history: %+v", hist)
	}
}

func TestReassignWithdrawalBetweenSlots(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.ingest(t, "tx-1", f.food, core.Withdrawal, 12_000)

	before := f.rec(t)
	food0, _ := before.Find(f.food)
	trans0, _ := before.Find(f.trans)

	after, err := f.engine.ReassignTransaction(ctx, f.account.ID, "tx-1", f.trans)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	food1, _ := after.Find(f.food)
	trans1, _ := after.Find(f.trans)

	if food1.Remaining-food0.Remaining != 12_000 {
		t.Fatalf("food should gain 12,000: %s -> %s", food0.Remaining, food1.Remaining)
	}
	if trans0.Remaining-trans1.Remaining != 12_000 {
		t.Fatalf("transport should lose 12,000: %s -> %s", trans0.Remaining, trans1.Remaining)
	}
	if after.Uncategorized.Remaining != before.Uncategorized.Remaining || after.Balance != before.Balance {
		t.Fatal("uncategorized and balance must not change")
	}
	tx, _ := f.store.GetTransaction(ctx, f.account.ID, "tx-1")
	if tx.SlotID != f.trans {
		t.Fatalf("transaction not reassigned: %+v", tx)
	}
}

func TestReassignTwiceIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.ingest(t, "tx-1", f.food, core.Withdrawal, 12_000)

	if _, err := f.engine.ReassignTransaction(ctx, f.account.ID, "tx-1", f.trans); err != nil {
		t.Fatalf("first reassign: %v", err)
	}
	snapshot := f.rec(t)

	_, err := f.engine.ReassignTransaction(ctx, f.account.ID, "tx-1", f.trans)
	if !errors.Is(err, core.ErrAlreadyAssigned) {
		t.Fatalf("expected ErrAlreadyAssigned, got %v", err)
	}
	again := f.rec(t)
	for i := range snapshot.Slots {
		if snapshot.Slots[i].Remaining != again.Slots[i].Remaining {
			t.Fatalf("rejected retry changed slot %d", snapshot.Slots[i].ID)
		}
	}
	if again.Account.Version != snapshot.Account.Version {
		t.Fatal("rejected retry must not bump the version")
	}
}

func TestReassignZeroSumAcrossSourcesAndTypes(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name   string
		typ    core.TransactionType
		from   func(*fixture) core.SlotID
		target func(*fixture) core.SlotID
	}{
		{"withdrawal uncategorized to food", core.Withdrawal, func(*fixture) core.SlotID { return core.UncategorizedSlotID }, func(f *fixture) core.SlotID { return f.food }},
		{"withdrawal food to uncategorized", core.Withdrawal, func(f *fixture) core.SlotID { return f.food }, func(*fixture) core.SlotID { return core.UncategorizedSlotID }},
		{"deposit transport to savings", core.Deposit, func(f *fixture) core.SlotID { return f.trans }, func(f *fixture) core.SlotID { return f.savings }},
		{"transfer-out food to transport", core.TransferOut, func(f *fixture) core.SlotID { return f.food }, func(f *fixture) core.SlotID { return f.trans }},
		{"transfer-in uncategorized to food", core.TransferIn, func(*fixture) core.SlotID { return core.UncategorizedSlotID }, func(f *fixture) core.SlotID { return f.food }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.ingest(t, "tx", tc.from(f), tc.typ, 7_000)
			before := f.rec(t)

			after, err := f.engine.ReassignTransaction(ctx, f.account.ID, "tx", tc.target(f))
			if err != nil {
				t.Fatalf("reassign: %v", err)
			}
			var sumBefore, sumAfter core.Money
			for _, s := range before.All() {
				sumBefore += s.Remaining
			}
			for _, s := range after.All() {
				sumAfter += s.Remaining
			}
			if sumBefore != sumAfter || sumAfter != after.Balance {
				t.Fatalf("remaining not conserved: %s -> %s (balance %s)", sumBefore, sumAfter, after.Balance)
			}

			src0, _ := before.Find(tc.from(f))
			src1, _ := after.Find(tc.from(f))
			delta := src1.Remaining - src0.Remaining
			want := core.Money(7_000)
			if !tc.typ.IsDebit() {
				want = -7_000
			}
			if delta != want {
				t.Fatalf("source moved by %s, want %s", delta, want)
			}
		})
	}
}

func TestReassignErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.ingest(t, "tx-1", f.food, core.Withdrawal, 100)

	if _, err := f.engine.ReassignTransaction(ctx, f.account.ID, "missing", f.trans); !errors.Is(err, core.ErrTransactionNotFound) {
		t.Fatalf("expected transaction not found, got %v", err)
	}
	if _, err := f.engine.ReassignTransaction(ctx, f.account.ID, "tx-1", 999); !errors.Is(err, core.ErrSlotNotFound) {
		t.Fatalf("expected slot not found, got %v", err)
	}
	if _, err := f.engine.ReassignTransaction(ctx, 42, "tx-1", f.trans); !errors.Is(err, core.ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
}

func TestReallocateZeroSumAndHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	food0 := f.slot(t, f.food)
	trans0 := f.slot(t, f.trans)

	res, err := f.engine.ReallocateBudget(ctx, ReallocateRequest{AccountID: f.account.ID, From: f.food, To: f.trans, Delta: 20_000})
	if err != nil {
		t.Fatalf("reallocate: %v", err)
	}
	if res.RequiresConfirmation {
		t.Fatal("plain slot target needs no confirmation")
	}
	food1, _ := res.Reconciliation.Find(f.food)
	trans1, _ := res.Reconciliation.Find(f.trans)
	if food0.Budget+trans0.Budget != food1.Budget+trans1.Budget {
		t.Fatal("total budget changed")
	}
	if food0.Remaining+trans0.Remaining != food1.Remaining+trans1.Remaining {
		t.Fatal("total remaining changed")
	}
	if food1.Budget != 400_000 || trans1.Budget != 65_000 {
		t.Fatalf("unexpected budgets: food=%s transport=%s", food1.Budget, trans1.Budget)
	}

	foodHist, _ := f.engine.history.List(ctx, f.account.ID, f.food)
	transHist, _ := f.engine.history.List(ctx, f.account.ID, f.trans)
	if len(foodHist) != 2 || foodHist[0].OldBudget != 420_000 || foodHist[0].NewBudget != 400_000 {
		t.Fatalf("unexpected food history: %+v", foodHist)
	}
	if len(transHist) != 2 || transHist[0].NewBudget != 65_000 || transHist[0].Reason != core.ReasonReallocate {
		t.Fatalf("unexpected transport history: %+v", transHist)
	}
}

func TestReallocateInsufficientSourceLeavesSlotsUntouched(t *testing.T) {
	ctx := context.Background()
	for _, delta := range []core.Money{45_001, 100_000, 1_000_000} {
		f := newFixture(t)
		before := f.rec(t)
		_, err := f.engine.ReallocateBudget(ctx, ReallocateRequest{AccountID: f.account.ID, From: f.trans, To: f.food, Delta: delta})
		if !errors.Is(err, core.ErrInsufficientSource) {
			t.Fatalf("delta %s: expected ErrInsufficientSource, got %v", delta, err)
		}
		after := f.rec(t)
		for i := range before.Slots {
			if before.Slots[i].AccountSlot != after.Slots[i].AccountSlot {
				t.Fatalf("delta %s modified slot %d", delta, before.Slots[i].ID)
			}
		}
		hist, _ := f.store.ListHistory(ctx, f.account.ID, f.trans)
		if len(hist) != 1 {
			t.Fatalf("failed reallocation wrote history: %+v", hist)
		}
	}
}

func TestReallocateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cases := []struct {
		req  ReallocateRequest
		want error
	}{
		{ReallocateRequest{From: f.food, To: f.trans, Delta: 0}, core.ErrInvalidDelta},
		{ReallocateRequest{From: f.food, To: f.trans, Delta: -5}, core.ErrInvalidDelta},
		{ReallocateRequest{From: f.food, To: f.food, Delta: 5}, core.ErrSameSlot},
		{ReallocateRequest{From: core.UncategorizedSlotID, To: f.food, Delta: 5}, core.ErrInsufficientSource},
		{ReallocateRequest{From: 999, To: f.food, Delta: 5}, core.ErrSlotNotFound},
		{ReallocateRequest{From: f.food, To: 999, Delta: 5}, core.ErrSlotNotFound},
	}
	for i, tc := range cases {
		tc.req.AccountID = f.account.ID
		if _, err := f.engine.ReallocateBudget(ctx, tc.req); !errors.Is(err, tc.want) {
			t.Errorf("case %d: expected %v, got %v", i, tc.want, err)
		}
	}
}

func TestReallocateIntoSavingNeedsAcknowledgment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := ReallocateRequest{AccountID: f.account.ID, From: f.food, To: f.savings, Delta: 10_000}

	res, err := f.engine.ReallocateBudget(ctx, req)
	if err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	if !res.RequiresConfirmation {
		t.Fatal("saving target should require confirmation")
	}
	if got := f.slot(t, f.savings).Budget; got != 800_000 {
		t.Fatalf("unacknowledged attempt wrote: savings budget %s", got)
	}
	if res.Reconciliation.Account.Version != 2 {
		t.Fatalf("unacknowledged attempt bumped version to %d", res.Reconciliation.Account.Version)
	}

	req.Acknowledged = true
	res, err = f.engine.ReallocateBudget(ctx, req)
	if err != nil || res.RequiresConfirmation {
		t.Fatalf("acknowledged attempt: res=%+v err=%v", res, err)
	}
	if got := f.slot(t, f.savings).Budget; got != 810_000 {
		t.Fatalf("savings budget = %s, want 810,000", got)
	}
	hist, _ := f.store.ListHistory(ctx, f.account.ID, f.savings)
	if !hist[0].Acknowledged {
		t.Fatalf("acknowledgment should be audited: %+v", hist[0])
	}
}

func TestReallocateToUncategorized(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	req := ReallocateRequest{AccountID: f.account.ID, From: f.food, To: core.UncategorizedSlotID, Delta: 20_000, Acknowledged: true}

	res, err := f.engine.ReallocateBudget(ctx, req)
	if err != nil {
		t.Fatalf("reallocate: %v", err)
	}
	if res.Reconciliation.Uncategorized.Remaining != 255_000 || res.Reconciliation.Uncategorized.Budget != 0 {
		t.Fatalf("unexpected uncategorized: %+v", res.Reconciliation.Uncategorized)
	}
	hist, _ := f.store.ListHistory(ctx, f.account.ID, core.UncategorizedSlotID)
	if len(hist) != 0 {
		t.Fatalf("uncategorized has no history: %+v", hist)
	}
}

func TestSplitTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.ingest(t, "dinner", f.food, core.Withdrawal, 10_000)
	before := f.rec(t)
	food0, _ := before.Find(f.food)

	res, err := f.engine.SplitTransaction(ctx, f.account.ID, "dinner", 3)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if res.Split.PerPerson != 3_333 || res.Split.OthersShare != 6_667 {
		t.Fatalf("unexpected shares: %+v", res.Split)
	}
	food1, _ := res.Reconciliation.Find(f.food)
	if food1.Remaining-food0.Remaining != 6_667 {
		t.Fatalf("food should be credited 6,667: %s -> %s", food0.Remaining, food1.Remaining)
	}
	if before.Uncategorized.Remaining-res.Reconciliation.Uncategorized.Remaining != 6_667 {
		t.Fatal("uncategorized should absorb the others' share")
	}

	if _, err := f.engine.SplitTransaction(ctx, f.account.ID, "dinner", 2); !errors.Is(err, core.ErrAlreadySplit) {
		t.Fatalf("expected ErrAlreadySplit, got %v", err)
	}

	// Moving a split transaction moves only the holder's share.
	trans0 := f.slot(t, f.trans)
	if _, err := f.engine.ReassignTransaction(ctx, f.account.ID, "dinner", f.trans); err != nil {
		t.Fatalf("reassign split: %v", err)
	}
	if got := trans0.Remaining - f.slot(t, f.trans).Remaining; got != 3_333 {
		t.Fatalf("transport should be charged 3,333, got %s", got)
	}
	if got := f.slot(t, f.food).Remaining; got != food0.Remaining+10_000 {
		t.Fatalf("food should be fully released, got %s", got)
	}
}

func TestSplitShares(t *testing.T) {
	cases := []struct {
		amount      core.Money
		n           int
		per, others core.Money
	}{
		{10_000, 3, 3_333, 6_667},
		{10_000, 2, 5_000, 5_000},
		{7, 4, 1, 6},
		{1, 2, 0, 1},
	}
	for _, tc := range cases {
		per, others, err := SplitShares(tc.amount, tc.n)
		if err != nil {
			t.Fatalf("%s/%d: %v", tc.amount, tc.n, err)
		}
		if per != tc.per || others != tc.others {
			t.Errorf("%s/%d: got %s+%s, want %s+%s", tc.amount, tc.n, per, others, tc.per, tc.others)
		}
		if per*core.Money(tc.n)+tc.amount%core.Money(tc.n) != tc.amount || per+others != tc.amount {
			t.Errorf("%s/%d: shares do not add up", tc.amount, tc.n)
		}
	}
	if _, _, err := SplitShares(100, 1); !errors.Is(err, core.ErrInvalidParticipantCount) {
		t.Fatalf("expected ErrInvalidParticipantCount, got %v", err)
	}
}

func TestSplitValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.ingest(t, "salary", f.food, core.Deposit, 1_000)
	f.ingest(t, "loose", core.UncategorizedSlotID, core.Withdrawal, 1_000)

	cases := []struct {
		tx   core.TransactionID
		n    int
		want error
	}{
		{"salary", 1, core.ErrInvalidParticipantCount},
		{"salary", 0, core.ErrInvalidParticipantCount},
		{"salary", 2, core.ErrNotWithdrawal},
		{"loose", 2, core.ErrUncategorizedSplit},
		{"nope", 2, core.ErrTransactionNotFound},
	}
	for _, tc := range cases {
		if _, err := f.engine.SplitTransaction(ctx, f.account.ID, tc.tx, tc.n); !errors.Is(err, tc.want) {
			t.Errorf("%s/%d: expected %v, got %v", tc.tx, tc.n, tc.want, err)
		}
	}
}

func TestCommitSlotsValidation(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name     string
		proposal []SlotProposal
		want     error
	}{
		{"empty", nil, core.ErrEmptyProposal},
		{"unknown category", []SlotProposal{{CategoryCode: "YACHT", InitialBudget: 1}}, core.ErrUnknownCategory},
		{"unknown category id", []SlotProposal{{CategoryID: 999, InitialBudget: 1}}, core.ErrUnknownCategory},
		{"id and code disagree", []SlotProposal{{CategoryID: 1, CategoryCode: "TRANSPORT"}}, core.ErrUnknownCategory},
		{"duplicate by id and code", []SlotProposal{{CategoryID: 1}, {CategoryCode: "FOOD"}}, core.ErrDuplicateCategory},
		{"duplicate category", []SlotProposal{{CategoryCode: "FOOD"}, {CategoryCode: "food"}}, core.ErrDuplicateCategory},
		{"negative budget", []SlotProposal{{CategoryCode: "FOOD", InitialBudget: -1}}, core.ErrNegativeBudget},
		{"custom without name", []SlotProposal{{IsCustom: true, CustomName: " "}}, core.ErrEmptySlotName},
		{"over balance", []SlotProposal{{CategoryCode: "FOOD", InitialBudget: 600}, {IsCustom: true, CustomName: "Trip", InitialBudget: 401}}, core.ErrBudgetExceedsBalance},
		{"budget beyond range", []SlotProposal{{CategoryCode: "FOOD", InitialBudget: math.MaxInt64}, {CategoryCode: "TRANSPORT", InitialBudget: math.MaxInt64}}, core.ErrAmountOutOfRange},
		{"budgets summing past int64", []SlotProposal{
			{CategoryCode: "FOOD", InitialBudget: core.MaxAmount},
			{CategoryCode: "TRANSPORT", InitialBudget: core.MaxAmount},
		}, core.ErrBudgetExceedsBalance},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := New(memory.New(), catalog.Default(), WithLogger(log.Discard()))
			acc, _ := e.LinkAccount(ctx, "088", "1")
			if _, _, err := e.ApplyBalance(ctx, acc.ID, 1_000, t0); err != nil {
				t.Fatalf("apply balance: %v", err)
			}
			if _, err := e.CommitSlots(ctx, acc.ID, tc.proposal); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			rec, _ := e.Reconcile(ctx, acc.ID)
			if len(rec.Slots) != 0 {
				t.Fatalf("rejected proposal left slots behind: %+v", rec.Slots)
			}
		})
	}
}

func TestCommitSlotsRequiresBalanceAndRunsOnce(t *testing.T) {
	ctx := context.Background()
	e := New(memory.New(), catalog.Default(), WithLogger(log.Discard()))
	acc, _ := e.LinkAccount(ctx, "088", "1")
	proposal := []SlotProposal{{CategoryCode: "FOOD", InitialBudget: 10}, {IsCustom: true, CustomName: "Trip", IsSaving: true}}

	if _, err := e.CommitSlots(ctx, acc.ID, proposal); !errors.Is(err, core.ErrBalanceUnavailable) {
		t.Fatalf("expected ErrBalanceUnavailable, got %v", err)
	}
	if _, err := e.Reconcile(ctx, acc.ID); !errors.Is(err, core.ErrBalanceUnavailable) {
		t.Fatalf("reconcile before balance: %v", err)
	}
	if _, _, err := e.ApplyBalance(ctx, acc.ID, 100, t0); err != nil {
		t.Fatalf("apply balance: %v", err)
	}
	rec, err := e.CommitSlots(ctx, acc.ID, proposal)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(rec.Slots) != 2 || rec.Slots[0].DisplayName != "Food" || !rec.Slots[1].IsSaving || !rec.Slots[1].IsCustom {
		t.Fatalf("unexpected slots: %+v", rec.Slots)
	}
	if _, err := e.CommitSlots(ctx, acc.ID, proposal); !errors.Is(err, core.ErrSlotsAlreadyCommitted) {
		t.Fatalf("expected ErrSlotsAlreadyCommitted, got %v", err)
	}
}

func TestCreateAndDeleteSlot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.ingest(t, "bus", f.trans, core.Withdrawal, 5_000)

	trip, rec, err := f.engine.CreateSlot(ctx, f.account.ID, SlotProposal{IsCustom: true, CustomName: "Trip", InitialBudget: 30_000})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Uncategorized.Remaining != 235_000-30_000 {
		t.Fatalf("budget should be funded from uncategorized: %s", rec.Uncategorized.Remaining)
	}
	if _, _, err := f.engine.CreateSlot(ctx, f.account.ID, SlotProposal{IsCustom: true, CustomName: "Yacht", InitialBudget: 10_000_000}); !errors.Is(err, core.ErrInsufficientSource) {
		t.Fatalf("expected ErrInsufficientSource, got %v", err)
	}
	if _, _, err := f.engine.CreateSlot(ctx, f.account.ID, SlotProposal{CategoryCode: "FOOD"}); !errors.Is(err, core.ErrDuplicateCategory) {
		t.Fatalf("expected ErrDuplicateCategory, got %v", err)
	}
	if rec.All()[len(rec.All())-2].ID != trip.ID {
		t.Fatal("custom slot should sort after catalog slots")
	}

	transRemaining := f.slot(t, f.trans).Remaining
	uncat := f.rec(t).Uncategorized.Remaining
	rec, err = f.engine.DeleteSlot(ctx, f.account.ID, f.trans)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if rec.Uncategorized.Remaining != uncat+transRemaining {
		t.Fatalf("remaining should fold into uncategorized: %s", rec.Uncategorized.Remaining)
	}
	bus, _ := f.store.GetTransaction(ctx, f.account.ID, "bus")
	if !bus.SlotID.IsUncategorized() {
		t.Fatalf("transaction should move to uncategorized: %+v", bus)
	}
	hist, _ := f.store.ListHistory(ctx, f.account.ID, f.trans)
	if hist[0].Reason != core.ReasonDelete || hist[0].NewBudget != 0 || hist[0].OldBudget != 45_000 {
		t.Fatalf("unexpected delete history: %+v", hist[0])
	}
	if _, err := f.engine.DeleteSlot(ctx, f.account.ID, core.UncategorizedSlotID); !errors.Is(err, core.ErrUncategorizedImmutable) {
		t.Fatalf("expected ErrUncategorizedImmutable, got %v", err)
	}
	if _, err := f.engine.DeleteSlot(ctx, f.account.ID, f.trans); !errors.Is(err, core.ErrSlotNotFound) {
		t.Fatalf("expected slot not found, got %v", err)
	}
}

func TestIngestTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tx := core.Transaction{
		ID: "card-1", AccountID: f.account.ID, SlotID: f.food, Type: core.Withdrawal,
		Amount: 8_000, PostBalance: 1_492_000, OccurredAt: t0.Add(time.Minute),
	}
	res, err := f.engine.IngestTransaction(ctx, tx)
	if err != nil || !res.Inserted {
		t.Fatalf("ingest: res=%+v err=%v", res, err)
	}
	food, _ := res.Reconciliation.Find(f.food)
	if food.Remaining != 412_000 || res.Reconciliation.Balance != 1_492_000 {
		t.Fatalf("unexpected effect: food=%s balance=%s", food.Remaining, res.Reconciliation.Balance)
	}
	if res.Reconciliation.Uncategorized.Remaining != 235_000 {
		t.Fatalf("categorized spend must not touch uncategorized: %s", res.Reconciliation.Uncategorized.Remaining)
	}

	dup, err := f.engine.IngestTransaction(ctx, tx)
	if err != nil || dup.Inserted {
		t.Fatalf("duplicate should be a no-op: %+v %v", dup, err)
	}
	if got := f.slot(t, f.food).Remaining; got != 412_000 {
		t.Fatalf("duplicate charged twice: %s", got)
	}

	// An unknown slot falls back to Uncategorized.
	stray := core.Transaction{ID: "stray", AccountID: f.account.ID, SlotID: 999, Type: core.Withdrawal, Amount: 1_000, PostBalance: 1_491_000, OccurredAt: t0.Add(2 * time.Minute)}
	if _, err := f.engine.IngestTransaction(ctx, stray); err != nil {
		t.Fatalf("ingest stray: %v", err)
	}
	got, _ := f.store.GetTransaction(ctx, f.account.ID, "stray")
	if !got.SlotID.IsUncategorized() {
		t.Fatalf("stray should be uncategorized: %+v", got)
	}

	if _, err := f.engine.IngestTransaction(ctx, core.Transaction{ID: "bad", AccountID: f.account.ID, Type: core.Withdrawal}); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestApplyBalanceIgnoresStaleUpdates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rec, applied, err := f.engine.ApplyBalance(ctx, f.account.ID, 1_600_000, t0.Add(time.Hour))
	if err != nil || !applied || rec.Uncategorized.Remaining != 335_000 {
		t.Fatalf("apply: applied=%v uncategorized=%s err=%v", applied, rec.Uncategorized.Remaining, err)
	}
	rec, applied, err = f.engine.ApplyBalance(ctx, f.account.ID, 1, t0)
	if err != nil || applied || rec.Balance != 1_600_000 {
		t.Fatalf("stale update should be ignored: applied=%v balance=%s err=%v", applied, rec.Balance, err)
	}
}

func TestEventsPublishedAfterCommit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	want := []core.EventType{core.EventAccountLinked, core.EventBalanceApplied, core.EventSlotsCommitted}
	got := f.notifier.types()
	if len(got) != len(want) {
		t.Fatalf("unexpected events: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, got[i], want[i])
		}
	}

	// Failed operations publish nothing.
	_, _ = f.engine.ReallocateBudget(ctx, ReallocateRequest{AccountID: f.account.ID, From: f.trans, To: f.food, Delta: 1_000_000})
	if len(f.notifier.types()) != 3 {
		t.Fatal("failed operation published an event")
	}

	// A broken broker does not fail a committed operation.
	f.notifier.fail = true
	if _, err := f.engine.ReallocateBudget(ctx, ReallocateRequest{AccountID: f.account.ID, From: f.food, To: f.trans, Delta: 1}); err != nil {
		t.Fatalf("publish failure leaked: %v", err)
	}
}

func TestConcurrentReallocationsKeepInvariant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.engine.locks = newAccountLocks(10 * time.Second)

	var wg sync.WaitGroup
	errs := make(chan error, 200)
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.engine.ReallocateBudget(ctx, ReallocateRequest{AccountID: f.account.ID, From: f.food, To: f.trans, Delta: 5_000})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := f.engine.ReallocateBudget(ctx, ReallocateRequest{AccountID: f.account.ID, From: f.trans, To: f.food, Delta: 1_000})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil && !errors.Is(err, core.ErrInsufficientSource) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	rec := f.rec(t)
	food, _ := rec.Find(f.food)
	trans, _ := rec.Find(f.trans)
	if food.Budget < 0 || trans.Budget < 0 {
		t.Fatalf("budget went negative: food=%s transport=%s", food.Budget, trans.Budget)
	}
	if food.Budget+trans.Budget != 465_000 {
		t.Fatalf("lost update: total budget %s", food.Budget+trans.Budget)
	}
	if f.engine.locks.size() != 0 {
		t.Fatalf("lock entries leaked: %d", f.engine.locks.size())
	}
}

func TestLockTimeoutReportsConcurrentModification(t *testing.T) {
	locks := newAccountLocks(20 * time.Millisecond)
	release, err := locks.acquire(context.Background(), 1)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := locks.acquire(context.Background(), 1); !errors.Is(err, core.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
	// Other accounts are not blocked.
	other, err := locks.acquire(context.Background(), 2)
	if err != nil {
		t.Fatalf("other account blocked: %v", err)
	}
	other()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := locks.acquire(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	release()
	release()
	if locks.size() != 0 {
		t.Fatalf("expected no entries, got %d", locks.size())
	}
}

func TestInvariantHoldsAcrossOperationSequence(t *testing.T) {
	stores := []struct {
		name  string
		setup func(*testing.T) *fixture
	}{
		{"memory", newFixture},
		{"sqlite", newSQLiteFixture},
	}
	for _, st := range stores {
		t.Run(st.name, func(t *testing.T) {
			runOperationSequence(t, st.setup(t))
		})
	}
}

func runOperationSequence(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	steps := []func() error{
		func() error { f.ingest(t, "a", f.food, core.Withdrawal, 30_000); return nil },
		func() error { f.ingest(t, "b", core.UncategorizedSlotID, core.Deposit, 100_000); return nil },
		func() error {
			_, err := f.engine.ReassignTransaction(ctx, f.account.ID, "a", f.trans)
			return err
		},
		func() error {
			_, err := f.engine.SplitTransaction(ctx, f.account.ID, "a", 4)
			return err
		},
		func() error {
			_, err := f.engine.ReallocateBudget(ctx, ReallocateRequest{AccountID: f.account.ID, From: f.savings, To: f.trans, Delta: 50_000})
			return err
		},
		func() error {
			_, _, err := f.engine.ApplyBalance(ctx, f.account.ID, 1_000_000, t0.Add(48*time.Hour))
			return err
		},
		func() error {
			_, err := f.engine.DeleteSlot(ctx, f.account.ID, f.food)
			return err
		},
		func() error {
			_, err := f.engine.ReassignTransaction(ctx, f.account.ID, "b", f.savings)
			return err
		},
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		f.rec(t)
	}
	if rec := f.rec(t); rec.Account.Version != 10 {
		t.Fatalf("expected version 10 after eight mutations, got %d", rec.Account.Version)
	}
}

func TestAmountsOutOfRangeRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	before := f.rec(t)

	if _, _, err := f.engine.ApplyBalance(ctx, f.account.ID, math.MaxInt64, t0.Add(time.Hour)); !errors.Is(err, core.ErrAmountOutOfRange) {
		t.Fatalf("balance: expected ErrAmountOutOfRange, got %v", err)
	}
	if _, _, err := f.engine.ApplyBalance(ctx, f.account.ID, math.MinInt64, t0.Add(time.Hour)); !errors.Is(err, core.ErrAmountOutOfRange) {
		t.Fatalf("negative balance: expected ErrAmountOutOfRange, got %v", err)
	}
	_, err := f.engine.IngestTransaction(ctx, core.Transaction{
		ID: "huge", AccountID: f.account.ID, Type: core.Withdrawal, Amount: math.MaxInt64,
		PostBalance: 1, OccurredAt: t0.Add(time.Hour),
	})
	if !errors.Is(err, core.ErrAmountOutOfRange) {
		t.Fatalf("transaction amount: expected ErrAmountOutOfRange, got %v", err)
	}
	_, err = f.engine.IngestTransaction(ctx, core.Transaction{
		ID: "huge-post", AccountID: f.account.ID, Type: core.Withdrawal, Amount: 1,
		PostBalance: math.MaxInt64, OccurredAt: t0.Add(time.Hour),
	})
	if !errors.Is(err, core.ErrAmountOutOfRange) {
		t.Fatalf("post balance: expected ErrAmountOutOfRange, got %v", err)
	}
	_, err = f.engine.ReallocateBudget(ctx, ReallocateRequest{AccountID: f.account.ID, From: f.savings, To: f.food, Delta: math.MaxInt64})
	if !errors.Is(err, core.ErrInvalidDelta) {
		t.Fatalf("delta: expected ErrInvalidDelta, got %v", err)
	}
	if _, _, err := f.engine.CreateSlot(ctx, f.account.ID, SlotProposal{IsCustom: true, CustomName: "Moon", InitialBudget: math.MaxInt64}); !errors.Is(err, core.ErrAmountOutOfRange) {
		t.Fatalf("create slot: expected ErrAmountOutOfRange, got %v", err)
	}

	after := f.rec(t)
	if after.Account.Version != before.Account.Version || after.Balance != before.Balance {
		t.Fatalf("rejected input changed the account: %+v", after.Account)
	}
}
