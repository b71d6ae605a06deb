package cli

import (
	"github.com/spf13/cobra"

	"llm-meeting/internal/output"
)

func NewHistoryCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse archived meetings",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List archived meetings",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := deps.App.Archive.List()
			if err != nil {
				return err
			}
			output.NewFormatter(cmd.OutOrStdout()).HistoryList(items)
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show the final summary of an archived meeting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := deps.App.Archive.Get(args[0])
			if err != nil {
				return err
			}
			output.NewFormatter(cmd.OutOrStdout()).Result(result)
			return nil
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}
