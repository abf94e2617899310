package balance

import (
	"context"
	"fmt"

	"github.com/collabhq/collabpay/internal/logging"
	"github.com/collabhq/collabpay/internal/money"
)

// PaymentRecord is a payment reduced to what balance derivation needs.
// Status uses the payment package's wire values; keeping the type here
// avoids a dependency cycle with the packages that feed the ledger.
type PaymentRecord struct {
	Net    money.Cents
	Status string
}

// WithdrawalRecord is a withdrawal reduced to what balance derivation needs.
type WithdrawalRecord struct {
	Gross  money.Cents
	Status string
}

// ActivitySource supplies a creator's payment and withdrawal history so
// reconciliation can cross-check the ledger against the records that
// produced it.
type ActivitySource interface {
	CreatorActivity(ctx context.Context, creatorID string) ([]PaymentRecord, []WithdrawalRecord, error)
}

// Discrepancy is one field where the balance views disagree. Derived is
// nil when no activity source is attached.
type Discrepancy struct {
	Field    string       `json:"field"`
	Stored   money.Cents  `json:"stored"`
	Replayed money.Cents  `json:"replayed"`
	Derived  *money.Cents `json:"derived,omitempty"`
}

// ReconcileReport compares up to three views of a creator's balance: the
// stored row, the fold of the ledger entries, and the balance derived from
// the payment and withdrawal records themselves. The third view catches
// corruption the entry replay cannot, since the entries and the stored row
// are written by the same code path.
type ReconcileReport struct {
	CreatorID     string        `json:"creatorId"`
	EntryCount    int           `json:"entryCount"`
	RecordCount   int           `json:"recordCount"`
	Consistent    bool          `json:"consistent"`
	Discrepancies []Discrepancy `json:"discrepancies,omitempty"`
	Stored        *Balance      `json:"stored"`
	Replayed      *Balance      `json:"replayed"`
	Derived       *Balance      `json:"derived,omitempty"`
}

// Replay folds entries into a balance from zero. It is a pure function:
// reconciliation never mutates anything, so running it twice is safe.
func Replay(creatorID string, entries []*Entry) (*Balance, error) {
	bal := &Balance{CreatorID: creatorID}
	for _, e := range entries {
		switch e.Type {
		case EntryCreditPending:
			bal.Pending += e.Amount
		case EntryRelease:
			bal.Pending -= e.Amount
			bal.Available += e.Amount
		case EntryCreditAvailable:
			bal.Available += e.Amount
		case EntryCreditEarned:
			bal.TotalEarned += e.Amount
		case EntryRevokePending:
			bal.Pending -= e.Amount
		case EntryReserve:
			bal.Available -= e.Amount
		case EntryReleaseReservation:
			bal.Available += e.Amount
		case EntryFinalizeWithdrawal:
			bal.TotalWithdrawn += e.Amount
		case EntryRefund:
			bal.Available -= e.Amount
			bal.TotalEarned -= e.Amount
		default:
			return nil, fmt.Errorf("unknown entry type %q in entry %s", e.Type, e.ID)
		}
	}
	return bal, nil
}

// Derive folds payment and withdrawal records into the balance they should
// have produced, without consulting the ledger at all. Failed payments keep
// their earnings in pending; a refunded payment's credit and debit cancel
// out; failed or cancelled withdrawals return their reservation.
func Derive(creatorID string, payments []PaymentRecord, withdrawals []WithdrawalRecord) (*Balance, error) {
	bal := &Balance{CreatorID: creatorID}
	for _, p := range payments {
		switch p.Status {
		case "pending", "processing", "failed":
			bal.Pending += p.Net
		case "completed":
			bal.Available += p.Net
			bal.TotalEarned += p.Net
		case "refunded":
			// Credited on completion, debited on refund.
		default:
			return nil, fmt.Errorf("unknown payment status %q", p.Status)
		}
	}
	for _, w := range withdrawals {
		switch w.Status {
		case "pending", "processing":
			bal.Available -= w.Gross
		case "completed":
			bal.Available -= w.Gross
			bal.TotalWithdrawn += w.Gross
		case "failed", "cancelled":
			// Reservation was released.
		default:
			return nil, fmt.Errorf("unknown withdrawal status %q", w.Status)
		}
	}
	return bal, nil
}

// Reconcile replays a creator's ledger, derives their balance from the
// payment and withdrawal records when an activity source is attached, and
// reports any drift between the views. Drift means a bug or manual
// intervention; the report is logged and returned, never auto-corrected.
func (l *Ledger) Reconcile(ctx context.Context, creatorID string) (*ReconcileReport, error) {
	entries, err := l.store.Entries(ctx, creatorID)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	stored, err := l.store.GetBalance(ctx, creatorID)
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}
	replayed, err := Replay(creatorID, entries)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{
		CreatorID:  creatorID,
		EntryCount: len(entries),
		Stored:     stored,
		Replayed:   replayed,
	}

	if l.activity != nil {
		pays, wds, err := l.activity.CreatorActivity(ctx, creatorID)
		if err != nil {
			return nil, fmt.Errorf("load activity: %w", err)
		}
		derived, err := Derive(creatorID, pays, wds)
		if err != nil {
			return nil, err
		}
		report.RecordCount = len(pays) + len(wds)
		report.Derived = derived
	}

	fields := []struct {
		name    string
		extract func(*Balance) money.Cents
	}{
		{"available", func(b *Balance) money.Cents { return b.Available }},
		{"pending", func(b *Balance) money.Cents { return b.Pending }},
		{"total_earned", func(b *Balance) money.Cents { return b.TotalEarned }},
		{"total_withdrawn", func(b *Balance) money.Cents { return b.TotalWithdrawn }},
	}
	for _, f := range fields {
		d := Discrepancy{
			Field:    f.name,
			Stored:   f.extract(stored),
			Replayed: f.extract(replayed),
		}
		mismatch := d.Stored != d.Replayed
		if report.Derived != nil {
			v := f.extract(report.Derived)
			d.Derived = &v
			if v != d.Stored {
				mismatch = true
			}
		}
		if mismatch {
			report.Discrepancies = append(report.Discrepancies, d)
		}
	}
	report.Consistent = len(report.Discrepancies) == 0

	if !report.Consistent {
		logging.L(ctx).Error("balance reconciliation drift",
			"creator_id", creatorID,
			"entries", report.EntryCount,
			"discrepancies", len(report.Discrepancies))
	}
	return report, nil
}
