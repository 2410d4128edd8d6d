// Package reconcile compares two cart snapshots and reports what changed
// between them, grouping rows by identity rather than by row instance.
//
// Rows sharing an identity are interchangeable: within one identity group the
// rows are paired by position, which keeps the diff linear and is enough to
// say "two more lattes" without tracking which physical row moved.
package reconcile

import (
	"strings"

	"github.com/xenking/kart-orders/internal/domain/cart"
)

// ChangeKind classifies a row in a Comparison.
type ChangeKind uint8

const (
	Unchanged ChangeKind = iota
	Added
	Removed
	QuantityChanged
)

func (k ChangeKind) String() string {
	switch k {
	case Unchanged:
		return "unchanged"
	case Added:
		return "added"
	case Removed:
		return "removed"
	case QuantityChanged:
		return "quantity_changed"
	default:
		return "unknown"
	}
}

// Change is one paired (or unpaired) row.
type Change struct {
	Kind     ChangeKind
	Identity string
	// Original is nil for Added rows.
	Original *cart.LineItem
	// Updated is nil for Removed rows.
	Updated          *cart.LineItem
	OriginalQuantity int
	NewQuantity      int
}

// Item returns the row the change is about, preferring the updated side.
func (c Change) Item() cart.LineItem {
	if c.Updated != nil {
		return *c.Updated
	}
	if c.Original != nil {
		return *c.Original
	}
	return cart.LineItem{}
}

// Counts tallies changes by kind.
type Counts struct {
	Added           int
	Removed         int
	QuantityChanged int
	Unchanged       int
}

// Comparison is the result of Diff.
type Comparison struct {
	Changes        []Change
	VoucherChanged bool
	TableChanged   bool
	OwnerChanged   bool
	NoteChanged    bool
}

// HasChanges reports whether any row changed or any attribute flag is set.
func (c Comparison) HasChanges() bool {
	if c.VoucherChanged || c.TableChanged || c.OwnerChanged || c.NoteChanged {
		return true
	}
	for _, ch := range c.Changes {
		if ch.Kind != Unchanged {
			return true
		}
	}
	return false
}

// Counts tallies the item changes.
func (c Comparison) Counts() Counts {
	var n Counts
	for _, ch := range c.Changes {
		switch ch.Kind {
		case Added:
			n.Added++
		case Removed:
			n.Removed++
		case QuantityChanged:
			n.QuantityChanged++
		case Unchanged:
			n.Unchanged++
		}
	}
	return n
}

// ForIdentity returns the changes recorded for one identity, in order.
func (c Comparison) ForIdentity(identity string) []Change {
	var out []Change
	for _, ch := range c.Changes {
		if ch.Identity == identity {
			out = append(out, ch)
		}
	}
	return out
}

// Diff compares two snapshots. When either side is nil the result is an
// empty comparison with no changes.
//
// Identities are visited in the order they first appear, original rows
// first, so the output is deterministic for equal inputs.
func Diff(original, updated *cart.Snapshot) Comparison {
	if original == nil || updated == nil {
		return Comparison{}
	}

	before := groupByIdentity(original.Items)
	after := groupByIdentity(updated.Items)

	var changes []Change
	for _, id := range unionOrder(before, after) {
		changes = append(changes, diffGroup(id, before.rows[id], after.rows[id])...)
	}

	return Comparison{
		Changes:        changes,
		VoucherChanged: !strings.EqualFold(original.VoucherCode(), updated.VoucherCode()),
		TableChanged:   original.TableRef != updated.TableRef,
		OwnerChanged:   original.OwnerRef != updated.OwnerRef,
		NoteChanged:    original.Note != updated.Note,
	}
}

type groups struct {
	order []string
	rows  map[string][]*cart.LineItem
}

func groupByIdentity(items []cart.LineItem) groups {
	g := groups{rows: make(map[string][]*cart.LineItem)}
	for i := range items {
		it := &items[i]
		if _, ok := g.rows[it.Identity]; !ok {
			g.order = append(g.order, it.Identity)
		}
		g.rows[it.Identity] = append(g.rows[it.Identity], it)
	}
	return g
}

func unionOrder(a, b groups) []string {
	out := make([]string, 0, len(a.order)+len(b.order))
	out = append(out, a.order...)
	for _, id := range b.order {
		if _, ok := a.rows[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// diffGroup pairs the rows of one identity by position. Surplus rows at the
// tail of the longer side become Added or Removed. Paired rows are compared
// by quantity only when both sides have the same row count.
func diffGroup(identity string, before, after []*cart.LineItem) []Change {
	paired := min(len(before), len(after))
	sameCount := len(before) == len(after)

	out := make([]Change, 0, max(len(before), len(after)))
	for i := range paired {
		o, u := copyRow(before[i]), copyRow(after[i])
		kind := Unchanged
		if sameCount && o.Quantity != u.Quantity {
			kind = QuantityChanged
		}
		out = append(out, Change{
			Kind:             kind,
			Identity:         identity,
			Original:         o,
			Updated:          u,
			OriginalQuantity: o.Quantity,
			NewQuantity:      u.Quantity,
		})
	}
	for _, row := range after[paired:] {
		u := copyRow(row)
		out = append(out, Change{Kind: Added, Identity: identity, Updated: u, NewQuantity: u.Quantity})
	}
	for _, row := range before[paired:] {
		o := copyRow(row)
		out = append(out, Change{Kind: Removed, Identity: identity, Original: o, OriginalQuantity: o.Quantity})
	}
	return out
}

// copyRow detaches the change from the caller's snapshot.
func copyRow(li *cart.LineItem) *cart.LineItem {
	c := *li
	return &c
}
