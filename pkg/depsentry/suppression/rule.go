// Package suppression implements the suppression-rule subsystem of depsentry:
// the rule model, the Dependency-Check suppression XML codec, extraction of
// packaged suppression files from dependency archives, and the aggregation of
// rules from inline configuration, suppression files and archives.
package suppression

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TypedProperty is a match criterion that is either a literal string or a
// regular expression, with an independent case-sensitivity flag.
type TypedProperty struct {
	Value         string
	Regex         bool
	CaseSensitive bool
}

// Literal returns a TypedProperty matching value verbatim.
func Literal(value string, caseSensitive bool) TypedProperty {
	return TypedProperty{Value: value, CaseSensitive: caseSensitive}
}

// Pattern returns a TypedProperty backed by a compiled regular expression.
// Case sensitivity is derived from the pattern: a pattern setting the i flag
// in a leading flag group is case-insensitive, everything else is
// case-sensitive.
func Pattern(re *regexp.Regexp) TypedProperty {
	pattern := re.String()
	return TypedProperty{
		Value:         pattern,
		Regex:         true,
		CaseSensitive: !hasInsensitiveFlag(pattern),
	}
}

// hasInsensitiveFlag reports whether pattern opens with a flag group setting
// the i flag, e.g. (?i), (?is) or (?i:...). Flags cleared after a dash do not
// count.
func hasInsensitiveFlag(pattern string) bool {
	if !strings.HasPrefix(pattern, "(?") {
		return false
	}
	for _, c := range pattern[2:] {
		switch c {
		case 'i':
			return true
		case '-', ':', ')':
			return false
		}
	}
	return false
}

// Matches reports whether candidate satisfies the property.
func (p TypedProperty) Matches(candidate string) bool {
	if p.Regex {
		pattern := p.Value
		if !p.CaseSensitive && !hasInsensitiveFlag(pattern) {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(candidate)
	}
	if p.CaseSensitive {
		return candidate == p.Value
	}
	return strings.EqualFold(candidate, p.Value)
}

func (p TypedProperty) key() string {
	return fmt.Sprintf("%q|%t|%t", p.Value, p.Regex, p.CaseSensitive)
}

// IdentifierKind enumerates the four ways a rule can select dependencies.
type IdentifierKind int

const (
	// FilePathIdentifier matches the dependency's file path.
	FilePathIdentifier IdentifierKind = iota
	// GAVIdentifier matches a Maven group:artifact:version coordinate.
	GAVIdentifier
	// SHA1Identifier matches the dependency's content hash.
	SHA1Identifier
	// PackageURLIdentifier matches a package URL (purl).
	PackageURLIdentifier
)

func (k IdentifierKind) String() string {
	switch k {
	case FilePathIdentifier:
		return "filePath"
	case GAVIdentifier:
		return "gav"
	case SHA1Identifier:
		return "sha1"
	case PackageURLIdentifier:
		return "packageUrl"
	default:
		return "unknown"
	}
}

// Identifier selects the dependencies a rule applies to. A rule carries at
// most one identifier; a rule without one applies to all dependencies.
type Identifier struct {
	Kind     IdentifierKind
	Property TypedProperty
}

// FilePath returns an identifier matching dependency file paths.
func FilePath(p TypedProperty) *Identifier {
	return &Identifier{Kind: FilePathIdentifier, Property: p}
}

// GAV returns an identifier matching Maven coordinates.
func GAV(p TypedProperty) *Identifier {
	return &Identifier{Kind: GAVIdentifier, Property: p}
}

// SHA1 returns an identifier matching a dependency's content hash. Hashes are
// always compared as case-insensitive literals.
func SHA1(hash string) *Identifier {
	return &Identifier{Kind: SHA1Identifier, Property: TypedProperty{Value: hash}}
}

// PackageURL returns an identifier matching package URLs.
func PackageURL(p TypedProperty) *Identifier {
	return &Identifier{Kind: PackageURLIdentifier, Property: p}
}

func (id *Identifier) key() string {
	if id == nil {
		return ""
	}
	return fmt.Sprintf("%s=%s", id.Kind, id.Property.key())
}

// Rule is a single suppression rule. Rules are value objects: once
// constructed they are never mutated, the base flag is only ever flipped on a
// copy (see WithBase).
type Rule struct {
	// Base marks a rule as inherited from elsewhere. Base rules are not
	// shown as active suppressions in the importing project's own report.
	Base bool

	// Until is the expiry date of the rule. The zero time means the rule
	// never expires.
	Until time.Time

	// Identifier selects the dependencies the rule applies to, nil means
	// all dependencies.
	Identifier *Identifier

	CPE               []TypedProperty
	CVSSBelow         []float64
	CWE               []string
	CVE               []string
	VulnerabilityName []TypedProperty

	// Notes is free-form documentation for the rule, may be empty.
	Notes string
}

// WithBase returns a copy of the rule with the base flag set to base. List
// fields are cloned so the copy shares no state with the original.
func (r Rule) WithBase(base bool) Rule {
	cp := r.clone()
	cp.Base = base
	return cp
}

func (r Rule) clone() Rule {
	cp := r
	if r.Identifier != nil {
		id := *r.Identifier
		cp.Identifier = &id
	}
	cp.CPE = append([]TypedProperty(nil), r.CPE...)
	cp.CVSSBelow = append([]float64(nil), r.CVSSBelow...)
	cp.CWE = append([]string(nil), r.CWE...)
	cp.CVE = append([]string(nil), r.CVE...)
	cp.VulnerabilityName = append([]TypedProperty(nil), r.VulnerabilityName...)
	return cp
}

// Expired reports whether the rule is no longer active at now. Per the
// suppression schema, on and after the until date a rule is inactive.
func (r Rule) Expired(now time.Time) bool {
	if r.Until.IsZero() {
		return false
	}
	return !now.Before(r.Until)
}

// Equal reports structural equality across all fields.
func (r Rule) Equal(other Rule) bool {
	return r.key() == other.key()
}

// key produces a deterministic serialization of all fields, used for
// structural equality and deduplication. Every variable-length element is
// quoted so list boundaries stay unambiguous no matter what characters the
// values carry.
func (r Rule) key() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "base=%t|until=%s|id=%s|notes=%q", r.Base, r.untilKey(), r.Identifier.key(), r.Notes)
	sb.WriteString("|cpe=")
	for _, p := range r.CPE {
		sb.WriteString(p.key())
		sb.WriteByte(';')
	}
	sb.WriteString("|cvssBelow=")
	for _, f := range r.CVSSBelow {
		sb.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
		sb.WriteByte(';')
	}
	sb.WriteString("|cwe=")
	for _, v := range r.CWE {
		sb.WriteString(strconv.Quote(v))
		sb.WriteByte(';')
	}
	sb.WriteString("|cve=")
	for _, v := range r.CVE {
		sb.WriteString(strconv.Quote(v))
		sb.WriteByte(';')
	}
	sb.WriteString("|vulnName=")
	for _, p := range r.VulnerabilityName {
		sb.WriteString(p.key())
		sb.WriteByte(';')
	}
	return sb.String()
}

func (r Rule) untilKey() string {
	if r.Until.IsZero() {
		return ""
	}
	return r.Until.Format(untilLayout)
}

// Dedupe removes structural duplicates from rules, preserving the first
// occurrence of each rule and the overall order.
func Dedupe(rules []Rule) []Rule {
	seen := make(map[string]struct{}, len(rules))
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		k := r.key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}
