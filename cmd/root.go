package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gookit/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/depsentry/depsentry/pkg/depsentry"
	"github.com/depsentry/depsentry/pkg/depsentry/provider"
	"github.com/depsentry/depsentry/pkg/depsentry/suppression"
)

const (
	// EnvvarProjectRoot names the environment variable we check for the project root path
	EnvvarProjectRoot = "DEPSENTRY_PROJECT_ROOT"
)

var (
	// version is set during the build using ldflags
	version string = "unknown"

	projectRoot string
	verbose     bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "depsentry",
	Short: "A dependency vulnerability-scan orchestrator with suppression management",
	Long: color.Render(`<light_yellow>Depsentry orchestrates a vulnerability-scanning engine</> against a project's resolved dependencies
and manages the suppression rules that keep known false positives out of reports. Suppressions come
from three places:
  Inline:    rules authored directly in the project's DEPSENTRY.yaml.
  Files:     Dependency-Check suppression XML files, local or served over http(s).
  Packaged:  suppression files shipped inside dependency archives under the well-known entry name.

<white>Configuration</>
Depsentry is configured through the DEPSENTRY.yaml file in the project root and environment variables:
  <light_blue>DEPSENTRY_PROJECT_ROOT</>  Contains the path where to look for a DEPSENTRY.yaml. Can also be set using --project.
`),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetLevel(log.DebugLevel)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	root := os.Getenv(EnvvarProjectRoot)
	if root == "" {
		// Walk up from the working directory, like running git from a
		// subdirectory.
		if discovered, err := depsentry.DiscoverProjectRoot(); err == nil {
			root = discovered
		} else {
			root = "."
		}
	}

	rootCmd.PersistentFlags().StringVarP(&projectRoot, "project", "p", root, "Project root")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enables verbose logging")
}

// project is one loaded project: its root directory, configuration and
// derived suppression settings.
type project struct {
	Root     string
	Config   *depsentry.Config
	Settings suppression.Settings
}

func loadProject(root string) (*project, error) {
	cfg, err := depsentry.LoadConfig(filepath.Join(root, depsentry.ProjectConfigFile))
	if err != nil {
		return nil, err
	}

	settings, err := cfg.Suppression.Settings()
	if err != nil {
		return nil, err
	}

	// Suppression file paths are project-relative, URLs pass through.
	for i, f := range settings.Files {
		if !filepath.IsAbs(f) && !isRemote(f) {
			settings.Files[i] = filepath.Join(root, f)
		}
	}

	return &project{Root: root, Config: cfg, Settings: settings}, nil
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// candidateArchives resolves the project's dependency archives.
func (p *project) candidateArchives() ([]suppression.Archive, error) {
	dirs := make([]string, 0, len(p.Config.DependencyDirs))
	for _, d := range p.Config.DependencyDirs {
		if !filepath.IsAbs(d) {
			d = filepath.Join(p.Root, d)
		}
		dirs = append(dirs, d)
	}
	return provider.FindArchives(dirs)
}

// collectRules runs the full aggregation for the project.
func (p *project) collectRules() ([]suppression.Rule, error) {
	var archives []suppression.Archive
	if p.Settings.PackagedEnabled {
		var err error
		archives, err = p.candidateArchives()
		if err != nil {
			return nil, err
		}
	}
	return suppression.NewCollector().Collect(p.Settings, archives), nil
}
