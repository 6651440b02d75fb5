// Package multipart models named-part upload payloads and streams them as
// multipart/form-data bodies, compressing file parts on the fly.
package multipart

import (
	"errors"
	"fmt"
)

// MetadataPart is the name of the part every payload must carry.
const MetadataPart = "metadata"

// Value is the content of a single part: either a StringValue or a FileValue.
type Value interface {
	isValue()
}

// StringValue is embedded directly into the body.
type StringValue struct {
	Value       string
	ContentType string
	Filename    string
}

// FileValue is read from Path and streamed through gzip; it is never fully
// loaded into memory.
type FileValue struct {
	Path        string
	ContentType string
	Filename    string
}

func (StringValue) isValue() {}
func (FileValue) isValue()   {}

// Part is a named value.
type Part struct {
	Name  string
	Value Value
}

// Payload is an ordered set of uniquely named parts. Insertion order is
// transmission order.
type Payload struct {
	parts []Part
	index map[string]int
}

// NewPayload ...
func NewPayload() *Payload {
	return &Payload{index: map[string]int{}}
}

// Set adds a part. Setting an existing name replaces its value and keeps its
// original position.
func (p *Payload) Set(name string, value Value) {
	if i, ok := p.index[name]; ok {
		p.parts[i].Value = value
		return
	}
	p.index[name] = len(p.parts)
	p.parts = append(p.parts, Part{Name: name, Value: value})
}

// Get ...
func (p *Payload) Get(name string) (Value, bool) {
	i, ok := p.index[name]
	if !ok {
		return nil, false
	}
	return p.parts[i].Value, true
}

// Parts returns a copy of the parts in transmission order.
func (p *Payload) Parts() []Part {
	parts := make([]Part, len(p.parts))
	copy(parts, p.parts)
	return parts
}

// Len ...
func (p *Payload) Len() int {
	return len(p.parts)
}

// Validate checks that the payload has a string metadata part and at least one
// file part.
func (p *Payload) Validate() error {
	if p == nil {
		return errors.New("payload is nil")
	}

	metadata, ok := p.Get(MetadataPart)
	if !ok {
		return fmt.Errorf("missing %q part", MetadataPart)
	}
	if _, ok := metadata.(StringValue); !ok {
		return fmt.Errorf("%q part must be a string value, got %T", MetadataPart, metadata)
	}

	for _, part := range p.parts {
		if _, ok := part.Value.(FileValue); ok {
			return nil
		}
	}
	return errors.New("payload has no file part")
}
