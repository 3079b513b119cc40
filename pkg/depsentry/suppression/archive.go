package suppression

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// PackagedEntryName is the well-known name of the suppression file depsentry
// looks for inside dependency archives, and the name under which exports are
// meant to be packaged.
//
// BEWARE: changing this value breaks the suppression-sharing contract between
// upstream and downstream projects. Existing archives carry the old name and
// their rules would silently stop being imported.
const PackagedEntryName = "dependency-suppressions.xml"

// ExtractPackaged pulls packaged suppression rules out of every archive that
// passes filter. Archives are opened as zip containers; an archive without an
// entry named entryName contributes zero rules. Unreadable archives and
// malformed entries are logged and skipped, they never fail the extraction.
// All returned rules carry Base=true: imported rules must not show up as the
// importing project's own active suppressions.
//
// Matching entries are extracted into a scratch directory that exists only
// for the duration of the call.
func ExtractPackaged(archives []Archive, filter Filter, entryName string) []Rule {
	if len(archives) == 0 || filter == nil {
		return nil
	}

	var rules []Rule
	err := withScratchDir(func(scratch string) error {
		for i, a := range archives {
			if !filter.Match(a) {
				continue
			}
			extracted, err := extractFromArchive(a, entryName, filepath.Join(scratch, fmt.Sprintf("%03d-%s", i, entryName)))
			if err != nil {
				log.WithError(err).WithField("archive", a.displayName()).Warn("Skipping unreadable packaged suppression source")
				continue
			}
			for _, r := range extracted {
				rules = append(rules, r.WithBase(true))
			}
		}
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("Cannot create scratch directory for packaged suppressions")
		return nil
	}

	return rules
}

// extractFromArchive copies the well-known entry of a single archive to dst
// and parses it. A missing entry yields zero rules and no error.
func extractFromArchive(a Archive, entryName, dst string) ([]Rule, error) {
	zr, err := zip.OpenReader(a.Path)
	if err != nil {
		return nil, xerrors.Errorf("cannot open archive: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != entryName {
			continue
		}

		if err := copyEntry(f, dst); err != nil {
			return nil, err
		}
		rules, err := ParseFile(dst)
		if err != nil {
			return nil, err
		}
		log.WithField("archive", a.displayName()).WithField("rules", len(rules)).Debug("Imported packaged suppressions")
		return rules, nil
	}

	return nil, nil
}

func copyEntry(f *zip.File, dst string) error {
	src, err := f.Open()
	if err != nil {
		return xerrors.Errorf("cannot open archive entry %s: %w", f.Name, err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return xerrors.Errorf("cannot extract archive entry %s: %w", f.Name, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return xerrors.Errorf("cannot extract archive entry %s: %w", f.Name, err)
	}
	if err := out.Close(); err != nil {
		return xerrors.Errorf("cannot extract archive entry %s: %w", f.Name, err)
	}
	return nil
}

// withScratchDir runs fn with a freshly created scratch directory and removes
// the directory on all paths, including panics. Every call gets its own
// directory, so concurrent extractions cannot collide on the well-known entry
// name.
func withScratchDir(fn func(dir string) error) error {
	dir, err := os.MkdirTemp("", "depsentry-suppressions-")
	if err != nil {
		return xerrors.Errorf("cannot create scratch directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.WithError(err).WithField("dir", dir).Warn("Cannot remove scratch directory")
		}
	}()

	return fn(dir)
}
