package ledger

// ledger.go — per-user capital allocation accounting.
//
// Each user has an available allocation fraction in [0, 1]. Strategies take
// a slice of it on start and give it back on exit. Records are immutable
// values swapped atomically: an update re-reads and retries on a lost race,
// capped so a pathological interleaving can't spin forever. Callers never
// see a conflict, only success or a plain insufficient-balance refusal.

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/matthewp131/algotrader/internal/domain"
	"github.com/shopspring/decimal"
)

// casRetries bounds how many times an update re-reads after losing a race.
const casRetries = 8

var one = decimal.NewFromInt(1)

// Record is one user's capital state. Credentials ride along because every
// broker session is opened with the owning user's keys.
type Record struct {
	Name      string
	Key       string
	Secret    string
	Available decimal.Decimal
}

// Credentials returns the broker credentials for this user.
func (r Record) Credentials() domain.Credentials {
	return domain.Credentials{Key: r.Key, Secret: r.Secret}
}

// Ledger tracks available allocation per user. All mutations go through
// Reserve and Release; the records themselves are never handed out mutably.
type Ledger struct {
	users sync.Map // name -> Record
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// AddUser registers (or replaces) a user with a full 1.0 allocation.
func (l *Ledger) AddUser(name, key, secret string) {
	l.users.Store(name, Record{Name: name, Key: key, Secret: secret, Available: one})
	slog.Info("user registered", "user", name)
}

// Get returns the user's record, or ok=false when unknown.
func (l *Ledger) Get(name string) (Record, bool) {
	v, ok := l.users.Load(name)
	if !ok {
		return Record{}, false
	}
	return v.(Record), true
}

// Reserve atomically checks and decrements the user's available allocation.
// It returns false without mutating anything when the user is unknown, the
// amount is outside (0, 1], or the available balance doesn't cover it.
func (l *Ledger) Reserve(name string, amount decimal.Decimal) bool {
	if amount.Sign() <= 0 || amount.GreaterThan(one) {
		return false
	}
	for i := 0; i < casRetries; i++ {
		v, ok := l.users.Load(name)
		if !ok {
			return false
		}
		rec := v.(Record)
		if rec.Available.LessThan(amount) {
			slog.Info("reservation refused: insufficient allocation",
				"user", name,
				"requested", amount,
				"available", rec.Available,
			)
			return false
		}
		next := rec
		next.Available = rec.Available.Sub(amount)
		if l.users.CompareAndSwap(name, rec, next) {
			slog.Info("allocation reserved",
				"user", name,
				"amount", amount,
				"remaining", next.Available,
			)
			return true
		}
		// Lost the race: another reserve/release landed first. Re-read.
	}
	slog.Warn("reservation abandoned after repeated conflicts", "user", name)
	return false
}

// Release atomically adds the amount back, clamped at 1.0. Releasing for an
// unknown user is a no-op; over-release is accepted and clamped.
func (l *Ledger) Release(name string, amount decimal.Decimal) {
	for i := 0; i < casRetries; i++ {
		v, ok := l.users.Load(name)
		if !ok {
			return
		}
		rec := v.(Record)
		next := rec
		next.Available = decimal.Min(one, rec.Available.Add(amount))
		if l.users.CompareAndSwap(name, rec, next) {
			slog.Info("allocation released",
				"user", name,
				"amount", amount,
				"available", next.Available,
			)
			return
		}
	}
	slog.Error("release abandoned after repeated conflicts; balance may under-report",
		"user", name, "amount", amount)
}

// Balances returns every user's remaining allocation, sorted by name.
func (l *Ledger) Balances() []domain.UserBalance {
	var out []domain.UserBalance
	l.users.Range(func(_, v any) bool {
		rec := v.(Record)
		out = append(out, domain.UserBalance{User: rec.Name, Available: rec.Available})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	return out
}
