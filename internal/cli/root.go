package cli

import (
	"github.com/spf13/cobra"

	"llm-meeting/config"
	"llm-meeting/internal/app"
	"llm-meeting/internal/version"
)

type Dependencies struct {
	App    *app.App
	Config *config.Config
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "llm-meeting",
		Short:         "Hold meetings between several language models",
		Long:          "A CLI tool that runs a moderated, multi-round discussion between language models and writes a final summary with carried-over issues.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full() + "\n")

	rootCmd.AddCommand(NewRunCmd(deps))
	rootCmd.AddCommand(NewServeCmd(deps))
	rootCmd.AddCommand(NewCarryOverCmd(deps))
	rootCmd.AddCommand(NewHistoryCmd(deps))

	return rootCmd
}
