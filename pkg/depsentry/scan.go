package depsentry

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/depsentry/depsentry/pkg/depsentry/suppression"
)

// Scan runs the engine against target with the merged suppression rules in
// effect. Expired rules are dropped up front. When the engine's suppression
// subsystem is available the active rules are injected exactly once, before
// the scan; otherwise the rules are applied to the report locally so the
// outcome does not depend on the engine's capabilities.
func Scan(ctx context.Context, engine Engine, rules []suppression.Rule, target string) (*Report, error) {
	active := activeRules(rules, time.Now())
	if dropped := len(rules) - len(active); dropped > 0 {
		log.WithField("rules", dropped).Debug("Dropped expired suppression rules")
	}

	injected := engine.SupportsSuppressions()
	if injected {
		if err := engine.InjectSuppressions(active); err != nil {
			return nil, xerrors.Errorf("cannot inject suppressions: %w", err)
		}
		log.WithField("rules", len(active)).Debug("Injected suppression rules into engine")
	} else {
		log.Debug("Engine suppression subsystem unavailable, applying suppressions to the report instead")
	}

	report, err := engine.Scan(ctx, target)
	if err != nil {
		return nil, xerrors.Errorf("scan failed: %w", err)
	}
	if !injected {
		applySuppressions(report, active)
	}
	return report, nil
}

func activeRules(rules []suppression.Rule, now time.Time) []suppression.Rule {
	active := make([]suppression.Rule, 0, len(rules))
	for _, r := range rules {
		if r.Expired(now) {
			continue
		}
		active = append(active, r)
	}
	return active
}

// applySuppressions moves every finding matched by a rule into the report's
// suppressed list, preserving the order of the remaining findings.
func applySuppressions(report *Report, rules []suppression.Rule) {
	if report == nil || len(rules) == 0 {
		return
	}

	kept := report.Findings[:0]
	for _, f := range report.Findings {
		var hit bool
		for _, r := range rules {
			if ruleSuppresses(r, f) {
				hit = true
				break
			}
		}
		if hit {
			report.Suppressed = append(report.Suppressed, f)
			continue
		}
		kept = append(kept, f)
	}
	report.Findings = kept
}

// ruleSuppresses mirrors the engine-side matching semantics: the rule's
// identifier, when present, must match the finding's package, and at least
// one vulnerability criterion must match the finding.
func ruleSuppresses(r suppression.Rule, f Finding) bool {
	if r.Identifier != nil && !r.Identifier.Property.Matches(f.PackageName) {
		return false
	}

	for _, cve := range r.CVE {
		if strings.EqualFold(cve, f.ID) {
			return true
		}
	}
	for _, name := range r.VulnerabilityName {
		if name.Matches(f.ID) {
			return true
		}
	}
	for _, below := range r.CVSSBelow {
		if f.CvssScore < below {
			return true
		}
	}
	return false
}

// ShouldFail applies the CVSS failure policy to a report. A threshold <= 0
// fails unconditionally, even on an empty report. This looks odd but is
// long-standing observable behavior ("fail on everything") that users rely
// on; do not "fix" it.
func ShouldFail(report *Report, failCvssScore float64) bool {
	if failCvssScore <= 0 {
		return true
	}
	for _, f := range report.Findings {
		if f.CvssScore >= failCvssScore {
			return true
		}
	}
	return false
}
