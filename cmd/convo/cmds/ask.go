package cmds

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-go-golems/convo/pkg/abort"
	"github.com/go-go-golems/convo/pkg/client"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewAskCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [question...]",
		Short: "Ask a single question, read from the arguments or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			if question == "" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return errors.Wrap(err, "reading question from stdin")
				}
				question = strings.TrimSpace(string(b))
			}
			if question == "" {
				return errors.New("no question given")
			}

			o, err := getTurnOptions(cmd)
			if err != nil {
				return err
			}
			c, err := newClient(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			cancelOnInterrupt(ctx, c)

			var sendOptions []client.SendOption
			if system, _ := cmd.Flags().GetString("system"); system != "" {
				sendOptions = append(sendOptions, client.WithSystemMessage(system))
			}

			reply, err := runTurn(ctx, c, cmd.OutOrStdout(), question, o, sendOptions...)
			if err != nil {
				if kind := abort.Kind(err); kind != "" {
					return errors.Errorf("request %s: %v", kind, err)
				}
				return err
			}

			if printID, _ := cmd.Flags().GetBool("print-id"); printID {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "message id: %s\n", reply.ParentMessageID)
			}
			return nil
		},
	}
	addTurnFlags(cmd)
	cmd.Flags().String("system", "", "System message for this question only")
	cmd.Flags().Bool("print-id", false, "Print the id of the reply to stderr")
	return cmd
}
