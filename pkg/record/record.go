// Package record defines the in-memory CRM record and the per-module field
// schema ("vardefs") that mappers operate on.
package record

import (
	"sort"
)

// Record is one CRM entity instance being read or written. Attributes are
// mutated in place by mappers.
type Record struct {
	ID         string                 `json:"id,omitempty"`
	Module     string                 `json:"module"`
	Type       string                 `json:"type,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// New creates a record for module with a copy of attributes.
func New(module string, attributes map[string]interface{}) *Record {
	attrs := make(map[string]interface{}, len(attributes))
	for k, v := range attributes {
		attrs[k] = v
	}
	return &Record{Module: module, Attributes: attrs}
}

// Get returns the attribute value and whether it is set.
func (r *Record) Get(field string) (interface{}, bool) {
	if r == nil || r.Attributes == nil {
		return nil, false
	}
	v, ok := r.Attributes[field]
	return v, ok
}

// Set assigns an attribute, allocating the attribute map when needed.
func (r *Record) Set(field string, value interface{}) {
	if r.Attributes == nil {
		r.Attributes = make(map[string]interface{})
	}
	r.Attributes[field] = value
}

// Delete removes an attribute.
func (r *Record) Delete(field string) {
	if r == nil || r.Attributes == nil {
		return
	}
	delete(r.Attributes, field)
}

// AttributeNames returns the attribute names in lexical order.
func (r *Record) AttributeNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.Attributes))
	for name := range r.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsEmpty reports whether there is nothing to map: no module or no attributes.
func (r *Record) IsEmpty() bool {
	return r == nil || r.Module == "" || len(r.Attributes) == 0
}
