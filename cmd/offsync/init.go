package main

import (
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/njoerd114/offsync/internal/setup"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the configuration file interactively",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		wiz := setup.NewWizard(os.Stdin, cmd.OutOrStdout(), afero.NewOsFs(), cfgPath, newLogger())
		_, err := wiz.Run(cmd.Context())
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
