package cmds

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	boba_chat "github.com/go-go-golems/bobatea/pkg/chat"
	boba_conversation "github.com/go-go-golems/bobatea/pkg/conversation"
	"github.com/go-go-golems/convo/pkg/abort"
	"github.com/go-go-golems/convo/pkg/client"
	"github.com/go-go-golems/convo/pkg/events"
	"github.com/go-go-golems/convo/pkg/ui"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewChatCommand reads one message per line from stdin and keeps the
// conversation going until EOF. An interrupted or timed out turn is reported
// and the next line continues from the last completed reply.
func NewChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Hold a conversation, one message per line of stdin",
		Long: `Hold a conversation, one message per line of stdin.

Ctrl-C cancels the reply being received, Ctrl-D ends the conversation.
/history prints the conversation so far, /clear forgets it.

With --ui the conversation runs in a full screen chat interface instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := getTurnOptions(cmd)
			if err != nil {
				return err
			}
			c, err := newClient(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if withUI, _ := cmd.Flags().GetBool("ui"); withUI {
				return runChatUI(ctx, c, o)
			}

			w := cmd.OutOrStdout()
			parentID := ""
			cancelOnInterrupt(ctx, c)

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				_, _ = fmt.Fprint(cmd.ErrOrStderr(), "> ")
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				switch line {
				case "":
					continue
				case "/clear":
					c.ClearMessages(ctx)
					parentID = ""
					continue
				case "/history":
					for _, m := range c.Thread(ctx, parentID) {
						_, _ = fmt.Fprintln(w, m.String())
					}
					continue
				}

				reply, err := runTurn(ctx, c, w, line, o, client.WithParentMessageID(parentID))
				if err != nil {
					// the printer has already shown the interruption
					if abort.Kind(err) != "" {
						continue
					}
					return err
				}
				parentID = reply.ParentMessageID
			}

			return errors.Wrap(scanner.Err(), "reading stdin")
		},
	}
	addTurnFlags(cmd)
	cmd.Flags().Bool("ui", false, "Chat in a full screen terminal interface")
	return cmd
}

// runChatUI runs the bobatea chat model until the user quits. Replies stream
// into the interface through the event router.
func runChatUI(ctx context.Context, c *client.Client, o turnOptions) error {
	router, err := events.NewEventRouter(events.WithVerbose(o.verbose))
	if err != nil {
		return errors.Wrap(err, "failed to create event router")
	}
	defer func() {
		_ = router.Close()
	}()

	backendOptions := []ui.BackendOption{}
	if o.tools != nil {
		backendOptions = append(backendOptions, ui.WithToolbox(o.tools))
	}
	backend := ui.NewBackend(c, router.Sink(chatTopic), backendOptions...)

	// the client sends its own system message, this one is only shown
	seed := []*boba_conversation.Message{}
	if system := c.Settings().Chat.SystemMessage; system != "" {
		seed = append(seed, boba_conversation.NewChatMessage(boba_conversation.RoleSystem, system))
	}
	manager := boba_conversation.NewManager(boba_conversation.WithMessages(seed...))

	p := tea.NewProgram(
		boba_chat.InitialModel(manager, backend),
		tea.WithMouseCellMotion(),
		tea.WithAltScreen(),
	)
	router.AddHandler("ui", chatTopic, ui.ForwardFunc(p))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg := errgroup.Group{}
	eg.Go(func() error {
		err := router.Run(ctx)
		log.Debug().Err(err).Msg("event router stopped")
		return nil
	})
	eg.Go(func() error {
		defer cancel()
		<-router.Running()
		_, err := p.Run()
		backend.Kill()
		return err
	})

	return eg.Wait()
}
