package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"llm-meeting/internal/app"
	"llm-meeting/internal/llm"
	"llm-meeting/internal/meeting"
	"llm-meeting/internal/output"
)

type runOptions struct {
	settingsFile string
	topic        string
	rounds       int
	document     string
	carryOver    string
	participants []string
	moderator    string
	verbose      bool
}

func NewRunCmd(deps *Dependencies) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Hold a meeting",
		Long: "Hold a meeting described by a YAML settings file and/or flags. Flags override the file.\n" +
			"Participants and the moderator are given as provider:model, e.g. openai:gpt-4o.",
		Example: "  llm-meeting run --settings meeting.yaml\n" +
			"  llm-meeting run --topic \"新しい料金体系\" -p openai:gpt-4o -p anthropic:claude-sonnet-4 -m anthropic:claude-opus-4",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(cmd.OutOrStdout()).Verbose(opts.verbose)

			settings, err := opts.settings()
			if err != nil {
				return err
			}

			result, err := deps.App.Run(cmd.Context(), app.RunRequest{
				Settings:    settings,
				CarryOverID: opts.carryOver,
				Observers:   []meeting.Observer{formatter},
			})
			if err != nil {
				return err
			}

			formatter.Result(result)
			if result.Phase == meeting.PhaseError {
				return fmt.Errorf("meeting failed: %s", result.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.settingsFile, "settings", "s", "", "YAML meeting settings file")
	cmd.Flags().StringVarP(&opts.topic, "topic", "t", "", "Meeting topic")
	cmd.Flags().IntVarP(&opts.rounds, "rounds", "r", 0, "Rounds per participant (default from config)")
	cmd.Flags().StringVarP(&opts.document, "document", "d", "", "Reference document path or URL")
	cmd.Flags().StringVar(&opts.carryOver, "carry-over", "", "Carry-over id whose unresolved issues open the meeting")
	cmd.Flags().StringArrayVarP(&opts.participants, "participant", "p", nil, "Participant as provider:model (repeatable)")
	cmd.Flags().StringVarP(&opts.moderator, "moderator", "m", "", "Moderator as provider:model")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Print statements in full")

	return cmd
}

func (o runOptions) settings() (meeting.Settings, error) {
	var s meeting.Settings
	if o.settingsFile != "" {
		loaded, err := meeting.LoadSettingsFile(o.settingsFile)
		if err != nil {
			return s, err
		}
		s = loaded
	}

	if o.topic != "" {
		s.Topic = o.topic
	}
	if o.rounds != 0 {
		s.Rounds = o.rounds
	}
	if o.document != "" {
		s.Document = o.document
	}
	if len(o.participants) > 0 {
		s.Participants = nil
		for _, p := range o.participants {
			mc, err := parseModel(p)
			if err != nil {
				return s, fmt.Errorf("participant: %w", err)
			}
			s.Participants = append(s.Participants, mc)
		}
	}
	if o.moderator != "" {
		mc, err := parseModel(o.moderator)
		if err != nil {
			return s, fmt.Errorf("moderator: %w", err)
		}
		s.Moderator = mc
	}
	return s, nil
}

// parseModel reads "provider:model[:persona]".
func parseModel(spec string) (llm.ModelConfig, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
		return llm.ModelConfig{}, fmt.Errorf("expected provider:model, got %q", spec)
	}
	provider, err := llm.ParseProvider(parts[0])
	if err != nil {
		return llm.ModelConfig{}, err
	}
	mc := llm.ModelConfig{Provider: provider, Name: strings.TrimSpace(parts[1])}
	if len(parts) == 3 {
		mc.Persona = strings.TrimSpace(parts[2])
	}
	return mc, nil
}
