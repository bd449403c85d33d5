package cmds

import (
	"context"
	"os"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/grillo/pkg/conversation"
	"github.com/go-go-golems/grillo/pkg/events"
	"github.com/go-go-golems/grillo/pkg/helpers"
	"github.com/go-go-golems/grillo/pkg/history"
	"github.com/go-go-golems/grillo/pkg/prompt"
	"github.com/go-go-golems/grillo/pkg/session"
	"github.com/go-go-golems/grillo/pkg/transport"
	"github.com/go-go-golems/grillo/pkg/ui"
)

var ChatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the assistant panel",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context())
	},
}

func init() {
	ChatCmd.Flags().String("model", transport.DefaultModel, "Model to use for completions")
	ChatCmd.Flags().Int("max-tokens", transport.DefaultMaxTokens, "Maximum completion tokens")
	ChatCmd.Flags().Float32("temperature", transport.DefaultTemperature, "Sampling temperature")
	ChatCmd.Flags().Int("max-turns", prompt.DefaultMaxTurns, "Turn window sent with each request")
	ChatCmd.Flags().String("restore", string(session.RestoreSession), "Restore mode (never, session, always)")
	_ = viper.BindPFlags(ChatCmd.Flags())
}

func runChat(ctx context.Context) error {
	paths, err := DefaultPaths()
	if err != nil {
		return err
	}

	store := newHistoryStore(paths)
	if _, err := store.Load(); err != nil {
		if errors.Is(err, history.ErrUnsupportedVersion) {
			log.Error().Err(err).Str("path", store.Path()).
				Msg("history file comes from a newer version; this session will not be saved")
		} else {
			log.Error().Err(err).Msg("history could not be loaded, starting with an empty store")
		}
	}

	settingsService := newSettingsService(paths)

	mode, ok := session.ParseRestoreMode(viper.GetString("restore"))
	if !ok {
		return errors.Errorf("unknown restore mode %q", viper.GetString("restore"))
	}
	policy := session.NewRestorePolicy(mode, paths.PointerFile, store)

	manager := conversation.NewManager(
		conversation.WithStore(store),
		conversation.WithLastActivePointer(policy),
	)
	if id, ok := policy.ResolveAtOpen(manager.MessageCount() > 0); ok {
		if err := manager.LoadConversation(id); err != nil {
			log.Warn().Err(err).Str("conversation_id", id).Msg("could not resume conversation")
		}
	}

	apiKey := newAPIKeyResolver(paths, settingsService).Resolve()
	if apiKey == "" {
		return errors.New("no API key configured, run `grillo configure` or set GRILLO_OPENAI_API_KEY")
	}

	tp := transport.NewOpenAITransport(
		apiKey,
		viper.GetString("openai-base-url"),
		transport.WithModel(viper.GetString("model")),
		transport.WithMaxTokens(viper.GetInt("max-tokens")),
		transport.WithTemperature(float32(viper.GetFloat64("temperature"))),
	)

	assembler := prompt.NewAssembler(
		prompt.WithMaxTurns(viper.GetInt("max-turns")),
	)

	logger := helpers.NewWatermill(log.Logger)
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		// deliver lifecycle events in publish order
		BlockPublishUntilSubscriberAck: true,
	}, logger)
	defer func() {
		if err := pubSub.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close pubsub")
		}
	}()

	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	controller := session.NewController(
		ctx,
		manager,
		assembler,
		tp,
		session.WithPublisher(events.NewPublisher(pubSub, "ui")),
		session.WithPrepromptSource(settingsService),
		session.WithEnvContext(gatherEnvContext),
	)

	options := []tea.ProgramOption{
		tea.WithMouseCellMotion(),
	}
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		options = append(options, tea.WithOutput(os.Stderr))
	} else {
		options = append(options, tea.WithAltScreen())
	}

	p := tea.NewProgram(ui.NewModel(controller, manager), options...)

	router.AddNoPublisherHandler("ui",
		"ui", pubSub,
		func(msg *message.Message) error {
			e, err := events.NewEventFromJSON(msg.Payload)
			if err != nil {
				return err
			}
			p.Send(ui.StreamEventMsg{Event: e})
			msg.Ack()
			return nil
		})

	eg := errgroup.Group{}
	eg.Go(func() error {
		return router.Run(ctx)
	})
	eg.Go(func() error {
		defer cancel()

		if _, err := p.Run(); err != nil {
			return err
		}
		return nil
	})

	return eg.Wait()
}
