package suppression

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternDerivesCaseSensitivity(t *testing.T) {
	sensitive := Pattern(regexp.MustCompile(`^net\.nmoncho:.*$`))
	assert.True(t, sensitive.Regex)
	assert.True(t, sensitive.CaseSensitive, "a pattern without (?i) is case-sensitive")

	insensitive := Pattern(regexp.MustCompile(`(?i)^net\.nmoncho:.*$`))
	assert.True(t, insensitive.Regex)
	assert.False(t, insensitive.CaseSensitive, "a pattern with (?i) is case-insensitive")
}

func TestPatternDetectsCombinedFlagGroups(t *testing.T) {
	for _, pattern := range []string{
		`(?is)^org\.example:.*$`,
		`(?si)^org\.example:.*$`,
		`(?i:org\.example)`,
	} {
		prop := Pattern(regexp.MustCompile(pattern))
		assert.False(t, prop.CaseSensitive, pattern)
	}

	cleared := Pattern(regexp.MustCompile(`(?s-i)^org\.example:.*$`))
	assert.True(t, cleared.CaseSensitive, "a cleared i flag does not make the pattern insensitive")

	prop := TypedProperty{Value: `(?si)^org\.example:.*$`, Regex: true, CaseSensitive: false}
	assert.True(t, prop.Matches("org.example:foo:1.0"), "an existing flag group must not be double-prefixed")
}

func TestTypedPropertyMatches(t *testing.T) {
	tests := []struct {
		name      string
		prop      TypedProperty
		candidate string
		want      bool
	}{
		{"literal case-insensitive", Literal("CVE-2013-1337", false), "cve-2013-1337", true},
		{"literal case-sensitive mismatch", Literal("CVE-2013-1337", true), "cve-2013-1337", false},
		{"literal case-sensitive match", Literal("CVE-2013-1337", true), "CVE-2013-1337", true},
		{"regex case-sensitive", Pattern(regexp.MustCompile(`^org\.example:.*$`)), "org.example:foo:1.0", true},
		{"regex case-sensitive mismatch", Pattern(regexp.MustCompile(`^org\.example:.*$`)), "ORG.EXAMPLE:foo:1.0", false},
		{"regex forced insensitive", TypedProperty{Value: `^org\.example:.*$`, Regex: true}, "ORG.EXAMPLE:foo:1.0", true},
		{"invalid regex never matches", TypedProperty{Value: `([`, Regex: true}, "([", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.prop.Matches(tc.candidate))
		})
	}
}

func TestSHA1IdentifierIsCaseInsensitiveLiteral(t *testing.T) {
	id := SHA1("384FAA82E193D4E4B0546059CA09572654BC3970")
	require.Equal(t, SHA1Identifier, id.Kind)
	assert.False(t, id.Property.Regex)
	assert.False(t, id.Property.CaseSensitive)
	assert.True(t, id.Property.Matches("384faa82e193d4e4b0546059ca09572654bc3970"))
}

func TestRuleEqualIsStructural(t *testing.T) {
	a := Rule{
		Identifier: GAV(Literal("org.example:foo:1.0", false)),
		CVE:        []string{"CVE-2020-0001"},
		CVSSBelow:  []float64{7},
		Notes:      "known false positive",
	}
	b := Rule{
		Identifier: GAV(Literal("org.example:foo:1.0", false)),
		CVE:        []string{"CVE-2020-0001"},
		CVSSBelow:  []float64{7},
		Notes:      "known false positive",
	}
	assert.True(t, a.Equal(b))

	b.Base = true
	assert.False(t, a.Equal(b), "base is part of structural equality")

	c := a.clone()
	c.CVE = append(c.CVE, "CVE-2020-0002")
	assert.False(t, a.Equal(c))
}

func TestEqualDistinguishesListBoundaries(t *testing.T) {
	// Values may legitimately contain the key's separator characters; rules
	// differing only in how a list is split must stay distinct.
	a := Rule{CWE: []string{"a;b"}}
	b := Rule{CWE: []string{"a", "b"}}
	assert.False(t, a.Equal(b))
	assert.Len(t, Dedupe([]Rule{a, b}), 2)

	c := Rule{CVE: []string{"CVE-1;CVE-2"}}
	d := Rule{CVE: []string{"CVE-1", "CVE-2"}}
	assert.False(t, c.Equal(d))
	assert.Len(t, Dedupe([]Rule{c, d}), 2)

	e := Rule{CPE: []TypedProperty{{Value: `a"|false|false;b`}}}
	f := Rule{CPE: []TypedProperty{{Value: "a"}, {Value: "b"}}}
	assert.False(t, e.Equal(f))

	g := Rule{Notes: "x|cpe="}
	h := Rule{}
	assert.False(t, g.Equal(h))
}

func TestWithBaseCopiesInsteadOfMutating(t *testing.T) {
	orig := Rule{
		Identifier: FilePath(Literal(".*\\btest\\.jar", false)),
		CVE:        []string{"CVE-2017-7656"},
	}
	exported := orig.WithBase(true)

	assert.True(t, exported.Base)
	assert.False(t, orig.Base, "original must stay untouched")

	exported.CVE[0] = "CVE-9999-0000"
	assert.Equal(t, "CVE-2017-7656", orig.CVE[0], "copy must not share list state")
}

func TestRuleExpired(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	never := Rule{}
	assert.False(t, never.Expired(now), "zero until never expires")

	future := Rule{Until: time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)}
	assert.False(t, future.Expired(now))

	onTheDay := Rule{Until: time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)}
	assert.True(t, onTheDay.Expired(now), "on and after the until date the rule is inactive")

	past := Rule{Until: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
	assert.True(t, past.Expired(now))
}

func TestDedupePreservesFirstOccurrence(t *testing.T) {
	a := Rule{CVE: []string{"CVE-2020-0001"}, Notes: "first"}
	b := Rule{CVE: []string{"CVE-2020-0002"}}
	dup := Rule{CVE: []string{"CVE-2020-0001"}, Notes: "first"}

	out := Dedupe([]Rule{a, b, dup, b})
	require.Len(t, out, 2)
	assert.True(t, out[0].Equal(a))
	assert.True(t, out[1].Equal(b))
}
