// Package provider discovers dependency archives on disk and resolves their
// Maven coordinates, producing the candidate set the suppression aggregator
// filters.
package provider

import (
	"archive/zip"
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/package-url/packageurl-go"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/depsentry/depsentry/pkg/depsentry/suppression"
)

var archiveExtensions = map[string]struct{}{
	".jar": {},
	".war": {},
	".ear": {},
	".zip": {},
}

// FindArchives walks dirs and returns all dependency archives found,
// deterministically ordered by path. Coordinates are resolved from the
// archive's embedded pom.properties where possible; archives without one get
// a nil coordinate.
func FindArchives(dirs []string) ([]suppression.Archive, error) {
	var archives []suppression.Archive
	for _, dir := range dirs {
		err := godirwalk.Walk(dir, &godirwalk.Options{
			Callback: func(osPathname string, de *godirwalk.Dirent) error {
				if de.IsDir() {
					return nil
				}
				if _, ok := archiveExtensions[strings.ToLower(filepath.Ext(osPathname))]; !ok {
					return nil
				}
				archives = append(archives, suppression.Archive{
					Path:       osPathname,
					Name:       filepath.Base(osPathname),
					Coordinate: resolveCoordinate(osPathname),
				})
				return nil
			},
			Unsorted: true,
			ErrorCallback: func(path string, err error) godirwalk.ErrorAction {
				log.WithError(err).WithField("path", path).Debug("Skipping unreadable path while collecting archives")
				return godirwalk.SkipNode
			},
		})
		if err != nil {
			return nil, xerrors.Errorf("cannot collect archives under %s: %w", dir, err)
		}
	}

	sort.Slice(archives, func(i, j int) bool { return archives[i].Path < archives[j].Path })
	return archives, nil
}

// resolveCoordinate determines the archive's Maven coordinate, first from its
// embedded META-INF/maven/<group>/<artifact>/pom.properties, then from a purl
// hint sitting next to the archive. Any failure leaves the coordinate
// unresolved, which only excludes the archive from coordinate-based filters.
func resolveCoordinate(path string) *suppression.Coordinate {
	if coord := coordinateFromPom(path); coord != nil {
		return coord
	}
	return coordinateFromHint(path)
}

func coordinateFromPom(path string) *suppression.Coordinate {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil
	}
	defer zr.Close()

	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, "META-INF/maven/") || !strings.HasSuffix(f.Name, "/pom.properties") {
			continue
		}

		r, err := f.Open()
		if err != nil {
			return nil
		}
		coord := parsePomProperties(r)
		r.Close()
		if coord != nil {
			return coord
		}
	}
	return nil
}

// coordinateFromHint reads the archive's sidecar purl hint, a file named
// <archive>.purl carrying a pkg:maven package URL. Dependency resolvers that
// strip Maven metadata from repackaged archives leave these behind.
func coordinateFromHint(path string) *suppression.Coordinate {
	hint, err := os.ReadFile(path + ".purl")
	if err != nil {
		return nil
	}

	coord, err := CoordinateFromPURL(strings.TrimSpace(string(hint)))
	if err != nil {
		log.WithError(err).WithField("archive", path).Debug("Ignoring unusable purl hint")
		return nil
	}
	return coord
}

func parsePomProperties(r io.Reader) *suppression.Coordinate {
	var coord suppression.Coordinate
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		switch strings.TrimSpace(key) {
		case "groupId":
			coord.GroupID = strings.TrimSpace(value)
		case "artifactId":
			coord.ArtifactID = strings.TrimSpace(value)
		case "version":
			coord.Version = strings.TrimSpace(value)
		}
	}
	if coord.GroupID == "" || coord.ArtifactID == "" {
		return nil
	}
	return &coord
}

// CoordinateFromPURL derives a Maven coordinate from a package URL, e.g.
// "pkg:maven/net.nmoncho/foobar@1.23".
func CoordinateFromPURL(purl string) (*suppression.Coordinate, error) {
	p, err := packageurl.FromString(purl)
	if err != nil {
		return nil, xerrors.Errorf("invalid package URL %s: %w", purl, err)
	}
	if p.Type != packageurl.TypeMaven {
		return nil, xerrors.Errorf("package URL %s is not a maven coordinate", purl)
	}
	return &suppression.Coordinate{
		GroupID:    p.Namespace,
		ArtifactID: p.Name,
		Version:    p.Version,
	}, nil
}
