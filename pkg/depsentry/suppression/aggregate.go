package suppression

import (
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Collector merges suppression rules from the three provenance channels:
// inline project configuration, suppression files (local or hosted), and
// suppression files packaged inside dependency archives.
type Collector struct {
	// extract performs the packaged-suppression extraction. Swappable for
	// testing; defaults to ExtractPackaged.
	extract func([]Archive, Filter, string) []Rule
}

// NewCollector returns a Collector using the real archive extractor.
func NewCollector() *Collector {
	return &Collector{extract: ExtractPackaged}
}

// Collect produces the final rule set handed to the scanning engine:
// inline rules and file-sourced rules with their base flag as authored, plus
// packaged rules forced to Base=true. When settings.PackagedEnabled is false
// the archive channel is skipped entirely, no archive is opened.
//
// Per-source failures (unreadable or malformed files, broken archives) are
// logged as warnings and contribute zero rules; Collect always returns the
// rules of the remaining sources.
func (c *Collector) Collect(settings Settings, archives []Archive) []Rule {
	rules := make([]Rule, 0, len(settings.Suppressions))
	for _, r := range settings.Suppressions {
		rules = append(rules, r.clone())
	}
	rules = append(rules, c.fromFiles(settings)...)

	if !settings.PackagedEnabled {
		log.Debug("Packaged suppressions disabled, skipping archive extraction")
		return rules
	}

	return append(rules, c.extract(archives, settings.Packaged, PackagedEntryName)...)
}

// fromFiles parses all configured suppression files and the hosted list. Each
// failing source is reported once, by name, and skipped.
func (c *Collector) fromFiles(settings Settings) []Rule {
	var rules []Rule
	for _, location := range settings.Files {
		parsed, err := loadSource(location)
		if err != nil {
			log.WithError(err).WithField("file", location).Warnf("Skipping malformed suppression file %s", location)
			continue
		}
		rules = append(rules, parsed...)
	}

	if settings.Hosted != nil && settings.Hosted.URL != "" {
		parsed, err := settings.Hosted.Fetch()
		if err != nil {
			log.WithError(err).WithField("url", settings.Hosted.URL).Warnf("Skipping hosted suppression list %s", settings.Hosted.URL)
		} else {
			rules = append(rules, parsed...)
		}
	}

	return rules
}

// WriteExport serializes the project's own suppression rules (inline plus
// file-sourced; packaged imports are deliberately excluded to prevent rules
// from accumulating across a dependency chain) to target. Every exported rule
// is forced to Base=true so downstream importers treat it as inherited, and
// structural duplicates are removed.
//
// Returns false and writes nothing when there is nothing to export. A failed
// write is a hard error: the user asked for an export and must see that it
// did not happen.
func (c *Collector) WriteExport(target string, settings Settings) (bool, error) {
	rules := make([]Rule, 0, len(settings.Suppressions))
	for _, r := range settings.Suppressions {
		rules = append(rules, r.WithBase(true))
	}
	for _, r := range c.fromFiles(settings) {
		rules = append(rules, r.WithBase(true))
	}
	rules = Dedupe(rules)

	if len(rules) == 0 {
		log.Debug("No suppressions to export")
		return false, nil
	}

	if err := WriteFile(target, rules); err != nil {
		return false, xerrors.Errorf("cannot export suppressions to %s: %w", target, err)
	}
	log.WithField("target", target).WithField("rules", len(rules)).Info("Exported suppressions")
	return true, nil
}
