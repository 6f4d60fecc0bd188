package ledger

import (
	"sort"
	"strings"
	"time"

	"dispense/internal/models"
)

type SortKey int

const (
	SortNone SortKey = iota
	SortName
	SortBalance
	SortUnixID
	SortLastSeen
)

// ParseSortKey accepts none, name, balance, unixid and lastseen.
func ParseSortKey(s string) (SortKey, bool) {
	switch strings.ToLower(s) {
	case "", "none":
		return SortNone, true
	case "name":
		return SortName, true
	case "balance", "bal":
		return SortBalance, true
	case "unixid", "uid":
		return SortUnixID, true
	case "lastseen":
		return SortLastSeen, true
	}
	return SortNone, false
}

// Query selects accounts for Iterate. Nil bounds and zero times are open.
type Query struct {
	FlagMask   models.Flags
	FlagValues models.Flags
	MinBalance *int64
	MaxBalance *int64
	SeenBefore time.Time
	SeenAfter  time.Time
	Sort       SortKey
	Descending bool
}

func (q Query) matches(acct models.Account) bool {
	if acct.Flags&q.FlagMask != q.FlagValues {
		return false
	}
	if q.MinBalance != nil && acct.Balance < *q.MinBalance {
		return false
	}
	if q.MaxBalance != nil && acct.Balance > *q.MaxBalance {
		return false
	}
	if !q.SeenBefore.IsZero() && !acct.LastSeen.Before(q.SeenBefore) {
		return false
	}
	if !q.SeenAfter.IsZero() && !acct.LastSeen.After(q.SeenAfter) {
		return false
	}
	return true
}

// Iterator walks a point-in-time copy of the matching accounts. It is
// forward-only and not safe for concurrent use.
type Iterator struct {
	accounts []models.Account
	pos      int
}

func (it *Iterator) Next() (models.Account, bool) {
	if it.pos >= len(it.accounts) {
		return models.Account{}, false
	}
	acct := it.accounts[it.pos]
	it.pos++
	return acct, true
}

func (it *Iterator) Len() int {
	return len(it.accounts)
}

// Iterate snapshots the store under a read lock, then filters and sorts the
// copy. Flags are matched in their effective form.
func (b *Bank) Iterate(q Query) *Iterator {
	b.mu.RLock()
	snapshot := make([]models.Account, 0, len(b.accounts))
	for _, acct := range b.accounts {
		snapshot = append(snapshot, *acct)
	}
	b.mu.RUnlock()

	// Map order is random; id order is the natural order.
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })

	out := snapshot[:0]
	for _, acct := range snapshot {
		acct.Flags = b.effectiveFlags(acct, b.groupFlags(acct))
		if q.matches(acct) {
			out = append(out, acct)
		}
	}
	if less := lessFunc(q.Sort); less != nil {
		sort.SliceStable(out, func(i, j int) bool {
			if q.Descending {
				return less(out[j], out[i])
			}
			return less(out[i], out[j])
		})
	} else if q.Descending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return &Iterator{accounts: out}
}

func lessFunc(key SortKey) func(a, b models.Account) bool {
	switch key {
	case SortName:
		return func(a, b models.Account) bool { return a.Name < b.Name }
	case SortBalance:
		return func(a, b models.Account) bool { return a.Balance < b.Balance }
	case SortUnixID:
		return func(a, b models.Account) bool { return a.UnixID < b.UnixID }
	case SortLastSeen:
		return func(a, b models.Account) bool { return a.LastSeen.Before(b.LastSeen) }
	}
	return nil
}
