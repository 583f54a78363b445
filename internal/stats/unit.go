package stats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrBadFormat marks persisted unit bytes that are missing, truncated or
// structurally invalid. Callers treat it like "no prior data" and start
// from an empty unit.
var ErrBadFormat = errors.New("bad unit format")

// unitMagic prefixes every serialized unit. Format version bumps replace
// the last byte.
var unitMagic = []byte{'R', 'S', 'U', 1}

const maxStringLen = 1 << 20

type valueStats struct {
	useCount int
	recency  int
}

// contextTable holds all counted values under one context. The order
// slice preserves insertion order so ValuesForContext is stable.
type contextTable struct {
	stats map[string]*valueStats
	order []string
}

func newContextTable() *contextTable {
	return &contextTable{stats: make(map[string]*valueStats)}
}

func (t *contextTable) get(value string) *valueStats {
	return t.stats[value]
}

func (t *contextTable) getOrCreate(value string) *valueStats {
	if vs := t.stats[value]; vs != nil {
		return vs
	}
	vs := &valueStats{}
	t.stats[value] = vs
	t.order = append(t.order, value)
	return vs
}

// Unit owns all counters for one shard: a mapping from context to value
// to (use count, recency order). Recency orders form a strict per-unit
// monotonic sequence; lower means older. A unit's shard id is fixed for
// its lifetime and its contents mutate only under the store's lock.
type Unit struct {
	id       int
	contexts map[string]*contextTable
	order    []string

	// lastRecency is the high-water mark of issued recency orders. It
	// survives serialization so reloaded units keep issuing strictly
	// increasing orders.
	lastRecency int

	sizeBytes int
}

// NewUnit creates an empty unit for the given shard.
func NewUnit(id int) *Unit {
	return &Unit{
		id:       id,
		contexts: make(map[string]*contextTable),
	}
}

// ID returns the shard this unit belongs to.
func (u *Unit) ID() int {
	return u.id
}

// UseCount returns the stored count for (context, value), or 0 if either
// is unknown.
func (u *Unit) UseCount(context, value string) int {
	t := u.contexts[context]
	if t == nil {
		return 0
	}
	vs := t.get(value)
	if vs == nil {
		return 0
	}
	return vs.useCount
}

// Recency returns the stored recency order for (context, value), or 0 if
// either is unknown.
func (u *Unit) Recency(context, value string) int {
	t := u.contexts[context]
	if t == nil {
		return 0
	}
	vs := t.get(value)
	if vs == nil {
		return 0
	}
	return vs.recency
}

// IncUseCount records one use of (context, value): the count goes up by
// one and the pair is stamped with a recency order strictly greater than
// every order previously issued by this unit.
func (u *Unit) IncUseCount(context, value string) {
	t := u.contexts[context]
	if t == nil {
		t = newContextTable()
		u.contexts[context] = t
		u.order = append(u.order, context)
		u.sizeBytes += len(context) + entryOverhead
	}
	vs := t.get(value)
	if vs == nil {
		vs = t.getOrCreate(value)
		u.sizeBytes += len(value) + entryOverhead
	}
	vs.useCount++
	u.lastRecency++
	vs.recency = u.lastRecency
}

// ValuesForContext returns all known values under context in insertion
// order. The result is a copy.
func (u *Unit) ValuesForContext(context string) []string {
	t := u.contexts[context]
	if t == nil {
		return nil
	}
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// entryOverhead approximates per-entry map and header cost for the
// resident-size estimate fed to the memory controller.
const entryOverhead = 48

// SizeBytes estimates the unit's resident footprint.
func (u *Unit) SizeBytes() int {
	return u.sizeBytes + entryOverhead
}

// Serialize encodes the full mapping plus the recency high-water mark.
// The layout is magic, then varints throughout:
//
//	magic | lastRecency | #contexts | { context | #values | { value | count | recency } }
func (u *Unit) Serialize() []byte {
	var buf bytes.Buffer
	buf.Write(unitMagic)
	writeUvarint(&buf, uint64(u.lastRecency))
	writeUvarint(&buf, uint64(len(u.order)))
	for _, context := range u.order {
		t := u.contexts[context]
		writeString(&buf, context)
		writeUvarint(&buf, uint64(len(t.order)))
		for _, value := range t.order {
			vs := t.stats[value]
			writeString(&buf, value)
			writeUvarint(&buf, uint64(vs.useCount))
			writeUvarint(&buf, uint64(vs.recency))
		}
	}
	return buf.Bytes()
}

// DeserializeUnit reconstructs a unit from Serialize output. Any
// structural problem yields ErrBadFormat; the partial result is
// discarded.
func DeserializeUnit(id int, data []byte) (*Unit, error) {
	if len(data) < len(unitMagic) || !bytes.Equal(data[:len(unitMagic)], unitMagic) {
		return nil, fmt.Errorf("%w: missing magic", ErrBadFormat)
	}
	r := bytes.NewReader(data[len(unitMagic):])

	u := NewUnit(id)
	last, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	u.lastRecency = int(last)

	numContexts, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < numContexts; i++ {
		context, err := readString(r)
		if err != nil {
			return nil, err
		}
		numValues, err := readUvarint(r)
		if err != nil {
			return nil, err
		}
		for j := uint64(0); j < numValues; j++ {
			value, err := readString(r)
			if err != nil {
				return nil, err
			}
			count, err := readUvarint(r)
			if err != nil {
				return nil, err
			}
			recency, err := readUvarint(r)
			if err != nil {
				return nil, err
			}
			if int(recency) > u.lastRecency {
				return nil, fmt.Errorf("%w: recency %d above high-water mark %d", ErrBadFormat, recency, u.lastRecency)
			}
			u.insertEntry(context, value, int(count), int(recency))
		}
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrBadFormat, r.Len())
	}
	return u, nil
}

func (u *Unit) insertEntry(context, value string, count, recency int) {
	t := u.contexts[context]
	if t == nil {
		t = newContextTable()
		u.contexts[context] = t
		u.order = append(u.order, context)
		u.sizeBytes += len(context) + entryOverhead
	}
	vs := t.getOrCreate(value)
	vs.useCount = count
	vs.recency = recency
	u.sizeBytes += len(value) + entryOverhead
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func readUvarint(r *bytes.Reader) (uint64, error) {
	v, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	return v, nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUvarint(r)
	if err != nil {
		return "", err
	}
	if n > maxStringLen || n > uint64(r.Len()) {
		return "", fmt.Errorf("%w: string length %d exceeds remaining input", ErrBadFormat, n)
	}
	b := make([]byte, n)
	if _, err := r.Read(b); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	return string(b), nil
}
