package model

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Metadata is an insertion ordered tag→value map. The zero value is an empty,
// read-only map; use NewMetadata to build one.
type Metadata struct {
	m *orderedmap.OrderedMap[string, string]
}

func NewMetadata() Metadata {
	return Metadata{m: orderedmap.New[string, string]()}
}

// Set adds or replaces a tag, keeping the position of an existing one.
func (m Metadata) Set(key, value string) {
	m.m.Set(key, value)
}

func (m Metadata) Get(key string) (string, bool) {
	if m.m == nil {
		return "", false
	}
	return m.m.Get(key)
}

func (m Metadata) Len() int {
	if m.m == nil {
		return 0
	}
	return m.m.Len()
}

// Keys returns tags in insertion order.
func (m Metadata) Keys() []string {
	if m.m == nil {
		return nil
	}
	keys := make([]string, 0, m.m.Len())
	for p := m.m.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	return keys
}

// Merge returns a new Metadata holding m followed by the tags of other.
func (m Metadata) Merge(other Metadata) Metadata {
	ret := NewMetadata()
	for _, src := range []Metadata{m, other} {
		if src.m == nil {
			continue
		}
		for p := src.m.Oldest(); p != nil; p = p.Next() {
			ret.m.Set(p.Key, p.Value)
		}
	}
	return ret
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	if m.m == nil {
		return []byte("{}"), nil
	}
	return m.m.MarshalJSON()
}
