package model

import (
	"path/filepath"
	"strings"
)

// Blob is the unit of analysis: raw bytes plus the filename they were declared
// under. A Blob is never mutated after NewBlob returns.
type Blob struct {
	data []byte
	name string
}

// NewBlob wraps data. Only the base name of filename is kept, so directory
// components never leak into a report.
func NewBlob(data []byte, filename string) Blob {
	name := filepath.Base(filepath.ToSlash(filename))
	if name == "." || name == "/" {
		name = ""
	}
	return Blob{data: data, name: name}
}

// Bytes returns the underlying data. Callers must not modify it.
func (b Blob) Bytes() []byte { return b.data }

func (b Blob) Len() int { return len(b.data) }

func (b Blob) Name() string { return b.name }

// Ext returns the lower-cased extension including the leading dot, or "".
func (b Blob) Ext() string {
	return strings.ToLower(filepath.Ext(b.name))
}
