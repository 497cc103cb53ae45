package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	nameStyle     = lipgloss.NewStyle().Bold(true).Width(12)
	disabledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List the modules compiled into this binary",
	Long: `List the modules compiled into this binary in load order. Modules
named in modules.disabled are marked and will not autoload.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			printError("load config", err)
			return err
		}

		w := cmd.OutOrStdout()
		for _, def := range catalog() {
			line := nameStyle.Render(def.Name) + " " + def.Description
			if cfg.IsDisabled(def.Name) {
				line = disabledStyle.Render(line + " (disabled)")
			}
			fmt.Fprintln(w, line)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modulesCmd)
}
