package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/depsentry/depsentry/pkg/depsentry/suppression"
)

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:   "collect [projects...]",
	Short: "Collects the merged suppression rules of one or more projects",
	Long: `Collect runs the full suppression aggregation for each project: inline rules,
suppression files (local and hosted) and, when enabled, suppression files
packaged inside dependency archives. The merged rule set is printed as a
Dependency-Check suppression XML document per project.

Projects are aggregated concurrently, each against its own scratch directory.`,
	Run: func(cmd *cobra.Command, args []string) {
		roots := args
		if len(roots) == 0 {
			roots = []string{projectRoot}
		}

		results := make([][]suppression.Rule, len(roots))
		var eg errgroup.Group
		for i, root := range roots {
			i, root := i, root
			eg.Go(func() error {
				prj, err := loadProject(root)
				if err != nil {
					return err
				}
				rules, err := prj.collectRules()
				if err != nil {
					return err
				}
				results[i] = rules
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			log.Fatal(err)
		}

		for i, rules := range results {
			log.WithField("project", roots[i]).WithField("rules", len(rules)).Debug("Collected suppressions")
			if err := suppression.Write(os.Stdout, rules); err != nil {
				log.Fatal(err)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(collectCmd)
}
