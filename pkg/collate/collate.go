// Package collate provides named comparison strategies for text values.
//
// A collation's identity is its Name. Two collations are interchangeable
// only if their names match exactly; the engine never silently mixes
// collations when deciding whether a backend-declared sort order satisfies
// a requested order.
package collate

import (
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/veltab/veltab/internal/errors"
)

// Collation is a named strategy for comparing and ordering string values.
type Collation interface {
	// Name returns the stable identity of the collation.
	Name() string

	// Compare orders a against b, returning -1, 0 or 1.
	Compare(a, b string) int

	// Equal reports whether a and b are equal under this collation.
	Equal(a, b string) bool

	// CaseSensitive reports whether the collation distinguishes case.
	// LIKE matching is case-insensitive unless this returns true.
	CaseSensitive() bool
}

// binaryCollation compares strings bytewise.
type binaryCollation struct{}

func (binaryCollation) Name() string { return "BINARY" }

func (binaryCollation) Compare(a, b string) int {
	return strings.Compare(a, b)
}

func (binaryCollation) Equal(a, b string) bool { return a == b }

func (binaryCollation) CaseSensitive() bool { return true }

// noCaseCollation compares strings after simple case folding.
type noCaseCollation struct{}

func (noCaseCollation) Name() string { return "NOCASE" }

func (noCaseCollation) Compare(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func (noCaseCollation) Equal(a, b string) bool {
	return strings.EqualFold(a, b)
}

func (noCaseCollation) CaseSensitive() bool { return false }

// localeCollation compares strings using Unicode collation rules for a
// BCP-47 language tag.
type localeCollation struct {
	tag string
	col *collate.Collator
}

func (l *localeCollation) Name() string { return l.tag }

func (l *localeCollation) Compare(a, b string) int {
	return l.col.CompareString(a, b)
}

func (l *localeCollation) Equal(a, b string) bool {
	return l.col.CompareString(a, b) == 0
}

func (l *localeCollation) CaseSensitive() bool { return true }

// Binary returns the bytewise collation. This is the engine default.
func Binary() Collation { return binaryCollation{} }

// NoCase returns the case-insensitive collation.
func NoCase() Collation { return noCaseCollation{} }

// Locale returns a locale-aware collation for a BCP-47 tag such as "de" or
// "sv-SE". The collation's name is the canonical form of the tag.
func Locale(tag string) (Collation, error) {
	parsed, err := language.Parse(tag)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCategoryValidation, errors.CodeInvalidSchema,
			"invalid collation locale "+tag, err)
	}
	return &localeCollation{tag: parsed.String(), col: collate.New(parsed)}, nil
}

// ByName resolves a collation identity: "BINARY", "NOCASE", or a BCP-47
// locale tag.
func ByName(name string) (Collation, error) {
	switch strings.ToUpper(name) {
	case "", "BINARY":
		return Binary(), nil
	case "NOCASE":
		return NoCase(), nil
	default:
		return Locale(name)
	}
}

// Same reports whether two collations share the same identity.
func Same(a, b Collation) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Name() == b.Name()
}
