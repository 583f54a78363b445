package stats

// Conjunct is one atomic (context, value) pair inside a composite key.
// Context groups related values (for example an expected type name);
// Value is the specific item being counted within that context.
type Conjunct struct {
	Context string
	Value   string
}

// Key is a query or update target: an ordered sequence of conjuncts.
// A composite suggestion is "as used as" its most-used conjunct and only
// as fresh as its stalest one, so aggregation over conjuncts is max for
// use counts and min for recency.
type Key struct {
	conjuncts []Conjunct
}

// Empty is the "no information" key. Every store operation short-circuits
// on it and returns neutral results without touching storage.
var Empty = Key{}

// NewKey builds an atomic key with a single conjunct.
func NewKey(context, value string) Key {
	return Key{conjuncts: []Conjunct{{Context: context, Value: value}}}
}

// NewCompositeKey builds a key from explicit conjuncts. Conjuncts are
// kept in the order given.
func NewCompositeKey(conjuncts ...Conjunct) Key {
	if len(conjuncts) == 0 {
		return Empty
	}
	cs := make([]Conjunct, len(conjuncts))
	copy(cs, conjuncts)
	return Key{conjuncts: cs}
}

// Compose concatenates the conjuncts of several keys into one composite
// key. Empty inputs contribute nothing; composing nothing yields Empty.
func Compose(keys ...Key) Key {
	total := 0
	for _, k := range keys {
		total += len(k.conjuncts)
	}
	if total == 0 {
		return Empty
	}
	cs := make([]Conjunct, 0, total)
	for _, k := range keys {
		cs = append(cs, k.conjuncts...)
	}
	return Key{conjuncts: cs}
}

// IsEmpty reports whether the key is the Empty sentinel.
func (k Key) IsEmpty() bool {
	return len(k.conjuncts) == 0
}

// Conjuncts returns the conjuncts in order. The returned slice must not
// be modified.
func (k Key) Conjuncts() []Conjunct {
	return k.conjuncts
}

// Context returns the context of the first conjunct, or "" for Empty.
func (k Key) Context() string {
	if k.IsEmpty() {
		return ""
	}
	return k.conjuncts[0].Context
}

// Value returns the value of the first conjunct, or "" for Empty.
func (k Key) Value() string {
	if k.IsEmpty() {
		return ""
	}
	return k.conjuncts[0].Value
}
