package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// PhoneFields is the priority order in which phone-shaped fields are probed.
var PhoneFields = []string{"phone", "phone_number", "mobile", "telephone", "contact", "phoneNumber"}

// IDField names the identity-shaped field of a record.
const IDField = "id"

// Record is one semi-structured item as returned by an upstream source.
type Record map[string]any

// Lookup returns the first field in fields holding a non-empty scalar value.
func (r Record) Lookup(fields ...string) (string, bool) {
	for _, f := range fields {
		v, ok := r[f]
		if !ok {
			continue
		}
		if s, ok := scalarString(v); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// ID returns the record's identity.
func (r Record) ID() (string, bool) {
	return r.Lookup(IDField)
}

// RawPhone returns the first phone-shaped value of the record. A nested
// contact_info object is probed with the same allowlist when the top level
// has none.
func (r Record) RawPhone() (string, bool) {
	if s, ok := r.Lookup(PhoneFields...); ok {
		return s, true
	}
	if nested, ok := r["contact_info"].(map[string]any); ok {
		return Record(nested).Lookup(PhoneFields...)
	}
	return "", false
}

// scalarString stringifies the value kinds a JSON decoder produces for
// scalars. Objects, arrays and booleans are not identifiers.
func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	}
	return "", false
}

// Entity is a discovered upstream item awaiting phone extraction.
type Entity struct {
	ID     string
	Source string
	Record Record
}

// EntitySet is the set of EntityIds already processed.
type EntitySet map[string]struct{}

func (s EntitySet) Add(id string) { s[id] = struct{}{} }

func (s EntitySet) Has(id string) bool {
	_, ok := s[id]
	return ok
}
