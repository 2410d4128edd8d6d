package reconcile

import "strings"

// Message keys passed to a Translator. Count keys receive the count as their
// only argument; flag keys receive none.
const (
	KeyAdded           = "order.change.added"
	KeyRemoved         = "order.change.removed"
	KeyQuantityChanged = "order.change.quantity"
	KeyVoucher         = "order.change.voucher"
	KeyTable           = "order.change.table"
	KeyOwner           = "order.change.owner"
	KeyNote            = "order.change.note"
	KeyNone            = "order.change.none"
)

// Keys lists every message key Summarize may emit.
func Keys() []string {
	return []string{
		KeyAdded, KeyRemoved, KeyQuantityChanged,
		KeyVoucher, KeyTable, KeyOwner, KeyNote,
		KeyNone,
	}
}

// Translator resolves a message key to localized text.
type Translator func(key string, args ...any) string

func keyOnly(key string, _ ...any) string { return key }

// Summarize renders c as a comma-joined sentence. Clauses always appear in
// the same order: added, removed, quantity changed, voucher, table, owner,
// note. A nil tr renders the bare message keys.
func Summarize(c Comparison, tr Translator) string {
	if tr == nil {
		tr = keyOnly
	}
	n := c.Counts()

	var clauses []string
	for _, cc := range []struct {
		key   string
		count int
	}{
		{KeyAdded, n.Added},
		{KeyRemoved, n.Removed},
		{KeyQuantityChanged, n.QuantityChanged},
	} {
		if cc.count > 0 {
			clauses = append(clauses, tr(cc.key, cc.count))
		}
	}
	for _, fc := range []struct {
		key string
		set bool
	}{
		{KeyVoucher, c.VoucherChanged},
		{KeyTable, c.TableChanged},
		{KeyOwner, c.OwnerChanged},
		{KeyNote, c.NoteChanged},
	} {
		if fc.set {
			clauses = append(clauses, tr(fc.key))
		}
	}

	if len(clauses) == 0 {
		return tr(KeyNone)
	}
	return strings.Join(clauses, ", ")
}
