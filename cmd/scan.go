package cmd

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/depsentry/depsentry/pkg/depsentry"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan [target]",
	Short: "Scans the project's dependencies for vulnerabilities",
	Long: `Scan collects the merged suppression rules, injects them into the configured
scanning engine and runs the engine against the target (the project root by
default). The build fails when a finding's CVSS score reaches the configured
failCvssScore; a failCvssScore of 0 or below fails the scan unconditionally.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		prj, err := loadProject(projectRoot)
		if err != nil {
			log.Fatal(err)
		}

		target := prj.Root
		if len(args) > 0 {
			target = args[0]
		}

		rules, err := prj.collectRules()
		if err != nil {
			log.Fatal(err)
		}

		engine := depsentry.NewExecEngine(prj.Config.Engine.Command)
		report, err := depsentry.Scan(context.Background(), engine, rules, target)
		if err != nil {
			log.Fatal(err)
		}

		log.WithField("findings", len(report.Findings)).
			WithField("suppressed", len(report.Suppressed)).
			Info("Scan completed")

		if depsentry.ShouldFail(report, prj.Config.FailScore()) {
			log.Fatalf("scan failed: findings at or above CVSS %v", prj.Config.FailScore())
		}
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
