package phmap

import (
	"fmt"
	"iter"
	"strings"

	"go.uber.org/zap"

	phmaperrors "github.com/tamirms/phmap/errors"
)

// StrMap is a Map over string keys that stores and hashes only the byte
// range that distinguishes its keys. The range is picked by FindRange on the
// first non-empty insertion and stays fixed until the map is emptied.
//
// Lookups slice the query to the same range before hashing, so a query that
// differs from a member only outside the range is reported as that member.
type StrMap[V any] struct {
	inner *Map[string, string, V]
	trim  Range
	log   *zap.Logger
}

// NewStrMap creates an empty string map.
func NewStrMap[V any](opts ...Option) (*StrMap[V], error) {
	inner, err := New[string, string, V](StringKeyer{}, opts...)
	if err != nil {
		return nil, err
	}
	return &StrMap[V]{inner: inner, log: inner.log}, nil
}

// Len returns the number of keys held.
func (m *StrMap[V]) Len() int {
	return m.inner.Len()
}

// NumSlots returns the size of the slot array.
func (m *StrMap[V]) NumSlots() int {
	return m.inner.NumSlots()
}

// Range returns the distinguishing range in use. It is empty until the
// first non-empty insertion.
func (m *StrMap[V]) Range() Range {
	return m.trim
}

// Insert adds one key-value pair and rebuilds the index.
func (m *StrMap[V]) Insert(key string, value V) error {
	return m.Extend(func(yield func(string, V) bool) {
		yield(key, value)
	})
}

// Extend adds pairs and rebuilds the index.
//
// A batch of two or more keys must produce the same range as the one in use,
// otherwise ErrRangeMismatch is returned. A single key only has to be long
// enough for the range in use. On an empty map the batch sets the range.
func (m *StrMap[V]) Extend(pairs iter.Seq2[string, V]) error {
	var keys []string
	var values []V
	for k, v := range pairs {
		keys = append(keys, k)
		values = append(values, v)
	}

	trim := m.trim
	switch {
	case len(keys) == 0:
	case m.inner.Len() == 0:
		r, err := FindRange(keys)
		if err != nil {
			return err
		}
		trim = r
	case len(keys) == 1:
		if len(keys[0]) < trim.End {
			return fmt.Errorf("%w: %q is %d bytes, range needs %d",
				phmaperrors.ErrKeyTooShort, keys[0], len(keys[0]), trim.End)
		}
	default:
		r, err := FindRange(keys)
		if err != nil {
			return err
		}
		if r != trim {
			return fmt.Errorf("%w: batch needs %v, map uses %v", phmaperrors.ErrRangeMismatch, r, trim)
		}
	}

	err := m.inner.Extend(func(yield func(string, V) bool) {
		for i, k := range keys {
			if !yield(strings.Clone(trim.Slice(k)), values[i]) {
				return
			}
		}
	})
	if err != nil {
		return err
	}

	if trim != m.trim {
		m.log.Debug("established distinguishing range",
			zap.Int("start", trim.Start),
			zap.Int("end", trim.End),
			zap.Int("keys", len(keys)))
		m.trim = trim
	}
	return nil
}

// view slices key to the range, or reports false when key is too short to
// be a member.
func (m *StrMap[V]) view(key string) (string, bool) {
	if len(key) < m.trim.End {
		return "", false
	}
	return m.trim.Slice(key), true
}

// Get returns the value stored for key.
func (m *StrMap[V]) Get(key string) (V, bool) {
	v, ok := m.view(key)
	if !ok {
		var zero V
		return zero, false
	}
	return m.inner.Get(v)
}

// GetPtr returns a pointer to the value stored for key, or nil. The pointer
// is valid until the next Insert, Extend or Close.
func (m *StrMap[V]) GetPtr(key string) *V {
	v, ok := m.view(key)
	if !ok {
		return nil
	}
	return m.inner.GetPtr(v)
}

// GetUnchecked returns the value in key's slot without verifying membership.
// It panics if key is shorter than the range or the map is empty.
func (m *StrMap[V]) GetUnchecked(key string) V {
	return m.inner.GetUnchecked(m.trim.Slice(key))
}

// GetPtrUnchecked is the pointer form of GetUnchecked.
func (m *StrMap[V]) GetPtrUnchecked(key string) *V {
	return m.inner.GetPtrUnchecked(m.trim.Slice(key))
}

// Close releases every held value once and empties the map, clearing the
// range.
func (m *StrMap[V]) Close() error {
	err := m.inner.Close()
	m.trim = Range{}
	return err
}
