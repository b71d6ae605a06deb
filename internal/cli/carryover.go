package cli

import (
	"github.com/spf13/cobra"

	"llm-meeting/internal/output"
)

func NewCarryOverCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "carryover",
		Aliases: []string{"carry-over"},
		Short:   "Inspect unresolved issues saved by past meetings",
	}

	var prune bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List saved carry-overs",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := deps.App.CarryOvers.List(prune)
			if err != nil {
				return err
			}
			output.NewFormatter(cmd.OutOrStdout()).CarryOverList(items)
			return nil
		},
	}
	list.Flags().BoolVar(&prune, "prune", false, "Delete corrupted files while listing")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one carry-over",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := deps.App.CarryOvers.Load(args[0])
			if err != nil {
				return err
			}
			output.NewFormatter(cmd.OutOrStdout()).CarryOver(args[0], rec)
			return nil
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}
