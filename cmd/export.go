package cmd

import (
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/depsentry/depsentry/pkg/depsentry/suppression"
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export [project]",
	Short: "Exports the project's own suppression rules for downstream consumers",
	Long: `Export writes the union of the project's inline and file-sourced suppression
rules, with every rule marked as base, to the export target. Suppressions
imported from dependency archives are not re-exported; passing them on would
duplicate rules across the dependency chain.

Packaged into an archive under the well-known entry name, the exported file is
picked up by downstream projects that enable packaged suppressions.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		root := projectRoot
		if len(args) > 0 {
			root = args[0]
		}

		prj, err := loadProject(root)
		if err != nil {
			log.Fatal(err)
		}

		target, _ := cmd.Flags().GetString("output")
		if target == "" {
			target = prj.Config.Export.Target
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(prj.Root, target)
		}

		written, err := suppression.NewCollector().WriteExport(target, prj.Settings)
		if err != nil {
			log.Fatal(err)
		}
		if !written {
			log.Info("No suppressions to export")
			return
		}
		log.WithField("target", target).Info("Suppression export written")
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "export target file (defaults to the configured export target)")

	rootCmd.AddCommand(exportCmd)
}
