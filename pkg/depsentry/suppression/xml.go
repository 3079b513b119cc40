package suppression

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/xerrors"
)

const (
	// SchemaNamespace is the namespace of the Dependency-Check suppression
	// file schema we read and write.
	SchemaNamespace = "https://jeremylong.github.io/DependencyCheck/dependency-suppression.1.3.xsd"

	// untilLayout is the date format of the "until" attribute.
	untilLayout = "2006-01-02"

	writeIndent = "    "
)

// MalformedFileError reports a suppression file that is not well-formed or
// does not follow the suppression schema. Callers recover from it by treating
// the file as contributing zero rules.
type MalformedFileError struct {
	File string
	Err  error
}

func (e *MalformedFileError) Error() string {
	return fmt.Sprintf("malformed suppression file %s: %v", e.File, e.Err)
}

func (e *MalformedFileError) Unwrap() error { return e.Err }

// xmlProperty mirrors the schema's regexStringType: chardata value with
// optional regex and caseSensitive attributes, both defaulting to false.
type xmlProperty struct {
	Value         string `xml:",chardata"`
	Regex         bool   `xml:"regex,attr,omitempty"`
	CaseSensitive bool   `xml:"caseSensitive,attr,omitempty"`
}

func toXMLProperty(p TypedProperty) xmlProperty {
	return xmlProperty{Value: p.Value, Regex: p.Regex, CaseSensitive: p.CaseSensitive}
}

func (x xmlProperty) property() TypedProperty {
	return TypedProperty{Value: x.Value, Regex: x.Regex, CaseSensitive: x.CaseSensitive}
}

// cdata marshals a string wrapped in a CDATA section.
type cdata string

func (c cdata) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return e.EncodeElement(struct {
		string `xml:",cdata"`
	}{string(c)}, start)
}

// xmlSuppress is the wire form of a single suppress element. Field order is
// the schema's mandated element order and must not be changed: notes,
// identifier, cpe, cvssBelow, cwe, cve, vulnerabilityName.
type xmlSuppress struct {
	Base  bool   `xml:"base,attr,omitempty"`
	Until string `xml:"until,attr,omitempty"`

	Notes *cdata `xml:"notes,omitempty"`

	FilePath   *xmlProperty `xml:"filePath,omitempty"`
	GAV        *xmlProperty `xml:"gav,omitempty"`
	SHA1       *string      `xml:"sha1,omitempty"`
	PackageURL *xmlProperty `xml:"packageUrl,omitempty"`

	CPE               []xmlProperty `xml:"cpe,omitempty"`
	CVSSBelow         []float64     `xml:"cvssBelow,omitempty"`
	CWE               []string      `xml:"cwe,omitempty"`
	CVE               []string      `xml:"cve,omitempty"`
	VulnerabilityName []xmlProperty `xml:"vulnerabilityName,omitempty"`
}

// xmlSuppressionsOut is the marshalling root, pinned to the schema namespace.
type xmlSuppressionsOut struct {
	XMLName  xml.Name      `xml:"https://jeremylong.github.io/DependencyCheck/dependency-suppression.1.3.xsd suppressions"`
	Suppress []xmlSuppress `xml:"suppress"`
}

// xmlSuppressionsIn is the unmarshalling root. The namespace is left open so
// files written against older schema revisions still parse.
type xmlSuppressionsIn struct {
	XMLName  xml.Name      `xml:"suppressions"`
	Suppress []xmlSuppress `xml:"suppress"`
}

// Parse decodes a suppression XML document into rules, preserving document
// order. name is used in error reporting only.
func Parse(r io.Reader, name string) ([]Rule, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, xerrors.Errorf("cannot read suppression file %s: %w", name, err)
	}

	var doc xmlSuppressionsIn
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &MalformedFileError{File: name, Err: err}
	}

	rules := make([]Rule, 0, len(doc.Suppress))
	for i, s := range doc.Suppress {
		rule, err := s.rule()
		if err != nil {
			return nil, &MalformedFileError{File: name, Err: xerrors.Errorf("suppress element %d: %w", i, err)}
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// ParseFile reads and parses the suppression file at path.
func ParseFile(path string) ([]Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("cannot open suppression file: %w", err)
	}
	defer f.Close()

	return Parse(f, path)
}

func (s xmlSuppress) rule() (Rule, error) {
	rule := Rule{Base: s.Base}

	if s.Until != "" {
		until, err := time.Parse(untilLayout, s.Until)
		if err != nil {
			return Rule{}, xerrors.Errorf("invalid until attribute %q: %w", s.Until, err)
		}
		rule.Until = until
	}

	var ids []*Identifier
	if s.FilePath != nil {
		ids = append(ids, FilePath(s.FilePath.property()))
	}
	if s.GAV != nil {
		ids = append(ids, GAV(s.GAV.property()))
	}
	if s.SHA1 != nil {
		ids = append(ids, SHA1(*s.SHA1))
	}
	if s.PackageURL != nil {
		ids = append(ids, PackageURL(s.PackageURL.property()))
	}
	if len(ids) > 1 {
		return Rule{}, xerrors.Errorf("at most one package identifier is allowed, found %d", len(ids))
	}
	if len(ids) == 1 {
		rule.Identifier = ids[0]
	}

	if s.Notes != nil {
		rule.Notes = string(*s.Notes)
	}
	for _, p := range s.CPE {
		rule.CPE = append(rule.CPE, p.property())
	}
	rule.CVSSBelow = append(rule.CVSSBelow, s.CVSSBelow...)
	rule.CWE = append(rule.CWE, s.CWE...)
	rule.CVE = append(rule.CVE, s.CVE...)
	for _, p := range s.VulnerabilityName {
		rule.VulnerabilityName = append(rule.VulnerabilityName, p.property())
	}

	return rule, nil
}

func (r Rule) wire() xmlSuppress {
	s := xmlSuppress{Base: r.Base}

	if !r.Until.IsZero() {
		s.Until = r.Until.Format(untilLayout)
	}
	if r.Notes != "" {
		notes := cdata(r.Notes)
		s.Notes = &notes
	}
	if r.Identifier != nil {
		prop := toXMLProperty(r.Identifier.Property)
		switch r.Identifier.Kind {
		case FilePathIdentifier:
			s.FilePath = &prop
		case GAVIdentifier:
			s.GAV = &prop
		case SHA1Identifier:
			hash := r.Identifier.Property.Value
			s.SHA1 = &hash
		case PackageURLIdentifier:
			s.PackageURL = &prop
		}
	}
	for _, p := range r.CPE {
		s.CPE = append(s.CPE, toXMLProperty(p))
	}
	s.CVSSBelow = append(s.CVSSBelow, r.CVSSBelow...)
	s.CWE = append(s.CWE, r.CWE...)
	s.CVE = append(s.CVE, r.CVE...)
	for _, p := range r.VulnerabilityName {
		s.VulnerabilityName = append(s.VulnerabilityName, toXMLProperty(p))
	}

	return s
}

// Write serializes rules as a suppression XML document in input order. The
// output is deterministic: serializing the same rules twice produces
// byte-identical documents.
func Write(w io.Writer, rules []Rule) error {
	doc := xmlSuppressionsOut{Suppress: make([]xmlSuppress, 0, len(rules))}
	for _, r := range rules {
		doc.Suppress = append(doc.Suppress, r.wire())
	}

	data, err := xml.MarshalIndent(doc, "", writeIndent)
	if err != nil {
		return xerrors.Errorf("cannot marshal suppressions: %w", err)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return xerrors.Errorf("cannot write suppression document: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return xerrors.Errorf("cannot write suppression document: %w", err)
	}
	return nil
}

// WriteFile serializes rules to the file at path, replacing its content.
func WriteFile(path string, rules []Rule) error {
	f, err := os.Create(path)
	if err != nil {
		return xerrors.Errorf("cannot create suppression file: %w", err)
	}

	if err := Write(f, rules); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return xerrors.Errorf("cannot close suppression file: %w", err)
	}
	return nil
}
