package cmds

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/go-go-golems/convo/pkg/client"
	"github.com/go-go-golems/convo/pkg/conversation"
	"github.com/go-go-golems/convo/pkg/events"
	"github.com/go-go-golems/convo/pkg/markdown"
	"github.com/go-go-golems/convo/pkg/settings"
	"github.com/go-go-golems/convo/pkg/toolbox"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tcnksm/go-input"
	"golang.org/x/sync/errgroup"
)

const chatTopic = "chat"

func loadSettings() (*settings.Settings, error) {
	return settings.FromViper(viper.GetViper())
}

// newClient builds a client from the effective settings. When no api key is
// configured and stdin is a terminal, the key is asked for on errOut.
func newClient(errOut io.Writer) (*client.Client, error) {
	s, err := loadSettings()
	if err != nil {
		return nil, err
	}
	if s.Client.APIKey == "" && isatty.IsTerminal(os.Stdin.Fd()) {
		ui := &input.UI{
			Writer: errOut,
			Reader: os.Stdin,
		}
		key, err := ui.Ask("API key", &input.Options{
			Required:  true,
			Loop:      true,
			Hide:      true,
			HideOrder: true,
		})
		if err != nil {
			return nil, errors.Wrap(err, "reading api key")
		}
		s.Client.APIKey = strings.TrimSpace(key)
	}
	return client.New(s)
}

// cancelOnInterrupt cancels the client's in-flight requests on every ctrl-c
// until ctx is done.
func cancelOnInterrupt(ctx context.Context, c *client.Client) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case <-sigCh:
				log.Debug().Msg("interrupted, canceling request")
				c.Cancel("interrupted")
			case <-ctx.Done():
				return
			}
		}
	}()
}

type turnOptions struct {
	stream     bool
	render     bool
	dumpEvents bool
	verbose    bool
	tools      *toolbox.Toolbox
}

func addTurnFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("stream", true, "Stream the reply as it is generated")
	cmd.Flags().Bool("render", false, "Render the reply as markdown when the output is a terminal")
	cmd.Flags().Bool("events", false, "Print the raw chat events as JSON instead of the reply")
	cmd.Flags().Bool("tools", false, "Offer the built-in tools (current_time, count_tokens) to the model")
}

func getTurnOptions(cmd *cobra.Command) (turnOptions, error) {
	stream, _ := cmd.Flags().GetBool("stream")
	render, _ := cmd.Flags().GetBool("render")
	dumpEvents, _ := cmd.Flags().GetBool("events")
	o := turnOptions{
		stream:     stream,
		render:     render,
		dumpEvents: dumpEvents,
		verbose:    viper.GetBool("verbose"),
	}
	if withTools, _ := cmd.Flags().GetBool("tools"); withTools {
		tb, err := builtinToolbox()
		if err != nil {
			return o, err
		}
		o.tools = tb
	}
	return o, nil
}

// runTurn sends one message while an event router prints the reply to w as
// it streams in.
func runTurn(
	ctx context.Context,
	c *client.Client,
	w io.Writer,
	text string,
	o turnOptions,
	sendOptions ...client.SendOption,
) (*client.Reply, error) {
	router, err := events.NewEventRouter(events.WithVerbose(o.verbose))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create event router")
	}
	defer func() {
		_ = router.Close()
	}()

	render := o.render && isatty.IsTerminal(os.Stdout.Fd())
	switch {
	case o.dumpEvents:
		router.AddHandler("events", chatTopic, router.DumpRawEvents(w))
	case render:
		// the rendered reply is printed once it is complete
		router.AddEventHandler("discard", chatTopic, func(events.Event) error { return nil })
	default:
		router.AddEventHandler("printer", chatTopic, events.NewPrinter(w).HandleEvent)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var reply *client.Reply
	eg := errgroup.Group{}
	eg.Go(func() error {
		defer cancel()
		return router.Run(ctx)
	})
	eg.Go(func() error {
		defer cancel()
		<-router.Running()

		sendCtx := events.WithEventSinks(ctx, router.Sink(chatTopic))
		sendOptions = append(sendOptions, client.WithStream(o.stream && !render))

		var err error
		if o.tools != nil {
			reply, err = c.SendWithTools(sendCtx, text, o.tools, 0, sendOptions...)
		} else {
			reply, err = c.SendMessage(sendCtx, text, sendOptions...)
		}
		return err
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	if render {
		if err := renderReply(w, reply.Message); err != nil {
			return nil, err
		}
	}
	return reply, nil
}

func renderReply(w io.Writer, msg conversation.Message) error {
	terminal, err := markdown.NewTerminal(100)
	if err != nil {
		return errors.Wrap(err, "creating terminal renderer")
	}
	_, err = io.WriteString(w, terminal.Render(msg.Content))
	return err
}
