package suppression

import (
	"path/filepath"

	"github.com/Masterminds/semver/v3"
)

// Settings aggregates everything the rule collection pipeline needs: inline
// rules, suppression file locations, the hosted list, and the packaged
// suppression import policy.
type Settings struct {
	// Files lists suppression file locations, either local paths or
	// http(s) URLs.
	Files []string

	// Hosted is an optional remote suppression list.
	Hosted *HostedList

	// Suppressions are the rules configured inline in the project.
	Suppressions []Rule

	// PackagedEnabled controls whether suppression files packaged inside
	// dependency archives are imported at all. When false, no archive is
	// opened.
	PackagedEnabled bool

	// Packaged selects the archives to import packaged suppressions from.
	// A nil filter matches nothing.
	Packaged Filter
}

// Coordinate is a Maven-style group/artifact/version dependency coordinate.
type Coordinate struct {
	GroupID    string
	ArtifactID string
	Version    string
}

func (c Coordinate) String() string {
	return c.GroupID + ":" + c.ArtifactID + ":" + c.Version
}

// Archive describes a candidate dependency archive. Coordinate is nil when
// the archive's coordinate could not be resolved; such archives never match
// coordinate-based filters but may still match name-based ones.
type Archive struct {
	// Path is the archive's location on disk.
	Path string

	// Name is the archive's display name, typically its file name.
	Name string

	Coordinate *Coordinate
}

func (a Archive) displayName() string {
	if a.Name != "" {
		return a.Name
	}
	return filepath.Base(a.Path)
}

// Filter decides which dependency archives packaged suppressions are imported
// from.
type Filter interface {
	Match(Archive) bool
}

// FilterFunc adapts a function to the Filter interface.
type FilterFunc func(Archive) bool

func (f FilterFunc) Match(a Archive) bool { return f(a) }

// DenyAll is the default packaged filter: no archive matches. Importing
// suppression rules from dependencies is strictly opt-in.
func DenyAll() Filter {
	return FilterFunc(func(Archive) bool { return false })
}

// NameFilter matches archives whose display name or file name matches the
// given glob pattern.
func NameFilter(pattern string) Filter {
	return FilterFunc(func(a Archive) bool {
		if ok, err := filepath.Match(pattern, a.displayName()); err == nil && ok {
			return true
		}
		ok, err := filepath.Match(pattern, filepath.Base(a.Path))
		return err == nil && ok
	})
}

// CoordinateFilter matches archives by their Maven coordinate. Empty fields
// act as wildcards. Versions, when set, is a semver constraint such as
// ">= 1.2, < 2" or "1.23".
type CoordinateFilter struct {
	GroupID    string
	ArtifactID string
	Versions   string
}

func (f CoordinateFilter) Match(a Archive) bool {
	if a.Coordinate == nil {
		return false
	}
	if f.GroupID != "" && f.GroupID != a.Coordinate.GroupID {
		return false
	}
	if f.ArtifactID != "" && f.ArtifactID != a.Coordinate.ArtifactID {
		return false
	}
	if f.Versions == "" {
		return true
	}

	constraint, err := semver.NewConstraint(f.Versions)
	if err != nil {
		return false
	}
	version, err := semver.NewVersion(a.Coordinate.Version)
	if err != nil {
		return false
	}
	return constraint.Check(version)
}

// AnyOf combines filters, matching archives that match at least one of them.
func AnyOf(filters ...Filter) Filter {
	return FilterFunc(func(a Archive) bool {
		for _, f := range filters {
			if f != nil && f.Match(a) {
				return true
			}
		}
		return false
	})
}
