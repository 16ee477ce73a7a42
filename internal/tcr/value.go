// Package tcr defines the record types shared by the bulk and single-cell
// repertoire pipelines.
package tcr

import (
	"fmt"
	"strconv"
	"strings"
)

// State describes whether a Value holds data.
type State uint8

const (
	// Pending means the field has not been resolved yet (zero value).
	Pending State = iota
	// NotAvailable means a lookup or parse happened and produced no data.
	NotAvailable
	// Present means the field holds a value.
	Present
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case NotAvailable:
		return "not_available"
	case Present:
		return "present"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Value is a string field with an explicit tri-state.
type Value struct {
	state State
	s     string
}

// Of returns a present value.
func Of(s string) Value {
	return Value{state: Present, s: s}
}

// NA is the not-available value.
var NA = Value{state: NotAvailable}

// missingTokens are the cell contents treated as missing data.
var missingTokens = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"NaN":  true,
	"nan":  true,
	"null": true,
	"NULL": true,
	"None": true,
}

// IsMissingToken reports whether a raw cell denotes missing data.
func IsMissingToken(s string) bool {
	return missingTokens[strings.TrimSpace(s)]
}

// Parse converts a raw table cell into a Value.
func Parse(raw string) Value {
	raw = strings.TrimSpace(raw)
	if IsMissingToken(raw) {
		return NA
	}
	return Of(raw)
}

// State returns the state of v.
func (v Value) State() State { return v.state }

// Ok reports whether v is present.
func (v Value) Ok() bool { return v.state == Present }

// Get returns the string and whether it is present.
func (v Value) Get() (string, bool) { return v.s, v.state == Present }

// String returns the value, or "NA" when not present.
func (v Value) String() string {
	if v.state != Present {
		return "NA"
	}
	return v.s
}

// Allele is a vendor allele number. NoAllele means no allele was specified.
type Allele int

// NoAllele marks an allele that the vendor did not report.
const NoAllele Allele = 0

// ParseAllele converts a raw allele cell. Missing cells become NoAllele.
// Vendors sometimes export floats ("1.0"), which are accepted.
func ParseAllele(raw string) Allele {
	raw = strings.TrimSpace(raw)
	if IsMissingToken(raw) {
		return NoAllele
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return Allele(n)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && f > 0 {
		return Allele(int(f))
	}
	return NoAllele
}

// Count is a read-count weight (templates or duplicate_count).
type Count struct {
	N  int64
	Ok bool
}

// ParseCount converts a raw count cell, accepting integer or float text.
func ParseCount(raw string) Count {
	raw = strings.TrimSpace(raw)
	if IsMissingToken(raw) {
		return Count{}
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return Count{N: n, Ok: true}
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Count{N: int64(f), Ok: true}
	}
	return Count{}
}

func (c Count) String() string {
	if !c.Ok {
		return "NA"
	}
	return strconv.FormatInt(c.N, 10)
}
