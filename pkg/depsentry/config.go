// Package depsentry wires the suppression-rule subsystem into a project:
// configuration loading, the scanning-engine boundary, and the build failure
// policy.
package depsentry

import (
	"os"
	"path/filepath"
	"time"

	"github.com/imdario/mergo"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"

	"github.com/depsentry/depsentry/pkg/depsentry/suppression"
)

const (
	// ProjectConfigFile marks a project root and carries its configuration.
	ProjectConfigFile = "DEPSENTRY.yaml"

	// defaultExportTarget is the suppression.PackagedEntryName so an export
	// dropped into an archive is importable without renaming.
	defaultExportTarget = suppression.PackagedEntryName
)

// Config is the project configuration read from DEPSENTRY.yaml.
type Config struct {
	// DependencyDirs lists the directories searched for dependency
	// archives, relative to the project root.
	DependencyDirs []string `yaml:"dependencyDirs,omitempty"`

	// FailCvssScore fails the build when a finding's CVSS score reaches
	// this value. Values <= 0 fail the build unconditionally. A pointer so
	// an explicit 0 survives default merging.
	FailCvssScore *float64 `yaml:"failCvssScore,omitempty"`

	Engine      EngineConfig      `yaml:"engine,omitempty"`
	Suppression SuppressionConfig `yaml:"suppression,omitempty"`
	Export      ExportConfig      `yaml:"export,omitempty"`
}

// EngineConfig configures the external scanning engine invocation.
type EngineConfig struct {
	// Command is the engine command line. The placeholders {{suppressions}}
	// and {{target}} are substituted before execution.
	Command []string `yaml:"command,omitempty"`
}

// ExportConfig configures the suppression export.
type ExportConfig struct {
	Target string `yaml:"target,omitempty"`
}

// SuppressionConfig is the yaml form of suppression.Settings.
type SuppressionConfig struct {
	Files           []string       `yaml:"files,omitempty"`
	HostedURL       string         `yaml:"hostedUrl,omitempty"`
	Suppressions    []RuleConfig   `yaml:"suppressions,omitempty"`
	PackagedEnabled bool           `yaml:"packagedEnabled,omitempty"`
	PackagedFilter  []FilterConfig `yaml:"packagedFilter,omitempty"`
}

// PropertyConfig is the yaml form of a literal-or-regex match value.
type PropertyConfig struct {
	Value         string `yaml:"value"`
	Regex         bool   `yaml:"regex,omitempty"`
	CaseSensitive bool   `yaml:"caseSensitive,omitempty"`
}

func (p *PropertyConfig) property() suppression.TypedProperty {
	return suppression.TypedProperty{Value: p.Value, Regex: p.Regex, CaseSensitive: p.CaseSensitive}
}

// RuleConfig is the yaml form of a single inline suppression rule.
type RuleConfig struct {
	Base  bool   `yaml:"base,omitempty"`
	Until string `yaml:"until,omitempty"`
	Notes string `yaml:"notes,omitempty"`

	FilePath   *PropertyConfig `yaml:"filePath,omitempty"`
	GAV        *PropertyConfig `yaml:"gav,omitempty"`
	SHA1       string          `yaml:"sha1,omitempty"`
	PackageURL *PropertyConfig `yaml:"packageUrl,omitempty"`

	CPE               []PropertyConfig `yaml:"cpe,omitempty"`
	CVSSBelow         []float64        `yaml:"cvssBelow,omitempty"`
	CWE               []string         `yaml:"cwe,omitempty"`
	CVE               []string         `yaml:"cve,omitempty"`
	VulnerabilityName []PropertyConfig `yaml:"vulnerabilityName,omitempty"`
}

// Rule converts the yaml form into a suppression rule.
func (rc RuleConfig) Rule() (suppression.Rule, error) {
	rule := suppression.Rule{Base: rc.Base, Notes: rc.Notes}

	if rc.Until != "" {
		until, err := time.Parse("2006-01-02", rc.Until)
		if err != nil {
			return suppression.Rule{}, xerrors.Errorf("invalid until date %q: %w", rc.Until, err)
		}
		rule.Until = until
	}

	var ids []*suppression.Identifier
	if rc.FilePath != nil {
		ids = append(ids, suppression.FilePath(rc.FilePath.property()))
	}
	if rc.GAV != nil {
		ids = append(ids, suppression.GAV(rc.GAV.property()))
	}
	if rc.SHA1 != "" {
		ids = append(ids, suppression.SHA1(rc.SHA1))
	}
	if rc.PackageURL != nil {
		ids = append(ids, suppression.PackageURL(rc.PackageURL.property()))
	}
	if len(ids) > 1 {
		return suppression.Rule{}, xerrors.Errorf("a suppression takes at most one package identifier, found %d", len(ids))
	}
	if len(ids) == 1 {
		rule.Identifier = ids[0]
	}

	for _, p := range rc.CPE {
		rule.CPE = append(rule.CPE, p.property())
	}
	rule.CVSSBelow = append(rule.CVSSBelow, rc.CVSSBelow...)
	rule.CWE = append(rule.CWE, rc.CWE...)
	rule.CVE = append(rule.CVE, rc.CVE...)
	for _, p := range rc.VulnerabilityName {
		rule.VulnerabilityName = append(rule.VulnerabilityName, p.property())
	}

	return rule, nil
}

// FilterConfig is the yaml form of a packaged-suppression archive filter.
// Either a name glob or a coordinate selector per entry.
type FilterConfig struct {
	Name       string `yaml:"name,omitempty"`
	GroupID    string `yaml:"groupId,omitempty"`
	ArtifactID string `yaml:"artifactId,omitempty"`
	Versions   string `yaml:"versions,omitempty"`
}

func (fc FilterConfig) filter() suppression.Filter {
	if fc.Name != "" {
		return suppression.NameFilter(fc.Name)
	}
	return suppression.CoordinateFilter{GroupID: fc.GroupID, ArtifactID: fc.ArtifactID, Versions: fc.Versions}
}

// Settings converts the yaml form into suppression.Settings. The packaged
// filter defaults to DenyAll: without an explicit filter no archive is
// trusted as a rule source.
func (sc SuppressionConfig) Settings() (suppression.Settings, error) {
	settings := suppression.Settings{
		Files:           sc.Files,
		PackagedEnabled: sc.PackagedEnabled,
		Packaged:        suppression.DenyAll(),
	}
	if sc.HostedURL != "" {
		settings.Hosted = &suppression.HostedList{URL: sc.HostedURL}
	}
	for i, rc := range sc.Suppressions {
		rule, err := rc.Rule()
		if err != nil {
			return suppression.Settings{}, xerrors.Errorf("suppression %d: %w", i, err)
		}
		settings.Suppressions = append(settings.Suppressions, rule)
	}
	if len(sc.PackagedFilter) > 0 {
		filters := make([]suppression.Filter, 0, len(sc.PackagedFilter))
		for _, fc := range sc.PackagedFilter {
			filters = append(filters, fc.filter())
		}
		settings.Packaged = suppression.AnyOf(filters...)
	}
	return settings, nil
}

// DefaultFailCvssScore is one above the CVSS maximum: by default no score can
// reach it and the build never fails on findings alone.
const DefaultFailCvssScore = 11.0

func defaultConfig() Config {
	return Config{
		Export: ExportConfig{Target: defaultExportTarget},
	}
}

// FailScore returns the configured CVSS failure threshold, falling back to
// DefaultFailCvssScore.
func (c *Config) FailScore() float64 {
	if c.FailCvssScore == nil {
		return DefaultFailCvssScore
	}
	return *c.FailCvssScore
}

// LoadConfig reads a project configuration and fills in defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("cannot read project config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, xerrors.Errorf("cannot parse project config %s: %w", path, err)
	}
	if err := mergo.Merge(&cfg, defaultConfig()); err != nil {
		return nil, xerrors.Errorf("cannot apply config defaults: %w", err)
	}

	return &cfg, nil
}

// DiscoverProjectRoot walks up from the working directory until it finds a
// DEPSENTRY.yaml.
func DiscoverProjectRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for i := 0; i < 100; i++ {
		if _, err := os.Stat(filepath.Join(wd, ProjectConfigFile)); err == nil {
			return wd, nil
		}

		wd = filepath.Dir(wd)
		if wd == "/" || wd == "" {
			break
		}
	}

	return "", xerrors.Errorf("cannot find project root")
}
