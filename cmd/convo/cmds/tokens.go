package cmds

import (
	"context"
	"io"
	"os"

	"github.com/go-go-golems/convo/pkg/tokens"
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	glazed_settings "github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tiktoken-go/tokenizer"
)

func NewTokensCommand() (*cobra.Command, error) {
	tokensCmd := &cobra.Command{
		Use:   "tokens",
		Short: "Token estimation helpers",
	}

	countCmd, err := NewCountCommand()
	if err != nil {
		return nil, err
	}
	countCobraCmd, err := cli.BuildCobraCommandFromGlazeCommand(countCmd)
	if err != nil {
		return nil, err
	}
	tokensCmd.AddCommand(countCobraCmd)

	listCodecsCmd, err := NewListCodecsCommand()
	if err != nil {
		return nil, err
	}
	listCodecsCobraCmd, err := cli.BuildCobraCommandFromGlazeCommand(listCodecsCmd)
	if err != nil {
		return nil, err
	}
	tokensCmd.AddCommand(listCodecsCobraCmd)

	return tokensCmd, nil
}

type CountSettings struct {
	Encoding string   `glazed.parameter:"encoding"`
	Files    []string `glazed.parameter:"files"`
}

type CountCommand struct {
	*cmds.CommandDescription
	stdin io.Reader
}

var _ cmds.GlazeCommand = (*CountCommand)(nil)

func NewCountCommand() (*CountCommand, error) {
	glazedParameterLayer, err := glazed_settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, errors.Wrap(err, "could not create glazed parameter layer")
	}

	return &CountCommand{
		CommandDescription: cmds.NewCommandDescription(
			"count",
			cmds.WithShort("Estimate the token count of files, or of stdin"),
			cmds.WithFlags(
				parameters.NewParameterDefinition(
					"encoding",
					parameters.ParameterTypeString,
					parameters.WithHelp("BPE encoding to count with, overrides the configured model"),
					parameters.WithDefault(""),
				),
			),
			cmds.WithArguments(
				parameters.NewParameterDefinition(
					"files",
					parameters.ParameterTypeStringList,
					parameters.WithHelp("Files to count, stdin when none is given"),
					parameters.WithDefault([]string{}),
				),
			),
			cmds.WithLayersList(glazedParameterLayer),
		),
		stdin: os.Stdin,
	}, nil
}

func (c *CountCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *layers.ParsedLayers,
	gp middlewares.Processor,
) error {
	s := &CountSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return errors.Wrap(err, "error initializing settings")
	}

	estimator, err := countEstimator(s.Encoding)
	if err != nil {
		return err
	}
	return c.addCountRows(ctx, gp, estimator, s.Files)
}

func (c *CountCommand) addCountRows(ctx context.Context, gp rowSink, estimator *tokens.TiktokenEstimator, files []string) error {
	addRow := func(source string, text []byte) error {
		return gp.AddRow(ctx, types.NewRow(
			types.MRP("source", source),
			types.MRP("encoding", estimator.Name()),
			types.MRP("tokens", estimator.Count(string(text))),
		))
	}

	if len(files) == 0 {
		b, err := io.ReadAll(c.stdin)
		if err != nil {
			return errors.Wrap(err, "reading stdin")
		}
		return addRow("-", b)
	}

	for _, path := range files {
		b, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "reading %s", path)
		}
		if err := addRow(path, b); err != nil {
			return err
		}
	}
	return nil
}

// countEstimator prefers an explicit encoding, then the configured
// encoding, then the configured model.
func countEstimator(encoding string) (*tokens.TiktokenEstimator, error) {
	if encoding != "" {
		return tokens.NewTiktokenEstimator(encoding), nil
	}
	s, err := loadSettings()
	if err != nil {
		return nil, err
	}
	if s.Chat.Encoding != "" {
		return tokens.NewTiktokenEstimator(s.Chat.Encoding), nil
	}
	model := ""
	if s.Chat.Engine != nil {
		model = *s.Chat.Engine
	}
	return tokens.ForModel(model), nil
}

type ListCodecsCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*ListCodecsCommand)(nil)

func NewListCodecsCommand() (*ListCodecsCommand, error) {
	glazedParameterLayer, err := glazed_settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, errors.Wrap(err, "could not create glazed parameter layer")
	}
	return &ListCodecsCommand{
		CommandDescription: cmds.NewCommandDescription(
			"list-codecs",
			cmds.WithShort("List the encodings tokens can be counted with"),
			cmds.WithLayersList(glazedParameterLayer),
		),
	}, nil
}

var codecs = []tokenizer.Encoding{
	tokenizer.R50kBase,
	tokenizer.P50kBase,
	tokenizer.P50kEdit,
	tokenizer.Cl100kBase,
}

func (l *ListCodecsCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *layers.ParsedLayers,
	gp middlewares.Processor,
) error {
	return addCodecRows(ctx, gp)
}

func addCodecRows(ctx context.Context, gp rowSink) error {
	for _, e := range codecs {
		row := types.NewRow(
			types.MRP("codec", string(e)),
			types.MRP("default", e == tokens.DefaultEncoding),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}
