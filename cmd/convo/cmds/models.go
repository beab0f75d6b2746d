package cmds

import (
	"context"
	"os"
	"sort"

	"github.com/go-go-golems/convo/pkg/client"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	glazed_settings "github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/mb0/glob"
	"github.com/pkg/errors"
	go_openai "github.com/sashabaranov/go-openai"
)

// rowSink is the part of a glazed processor the commands write to.
type rowSink interface {
	AddRow(ctx context.Context, row types.Row) error
}

type ModelsSettings struct {
	Match string `glazed.parameter:"match"`
	Owner string `glazed.parameter:"owner"`
}

type ModelsCommand struct {
	*cmds.CommandDescription
	newClient func() (*client.Client, error)
}

var _ cmds.GlazeCommand = (*ModelsCommand)(nil)

func NewModelsCommand() (*ModelsCommand, error) {
	glazedParameterLayer, err := glazed_settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, errors.Wrap(err, "could not create glazed parameter layer")
	}

	return &ModelsCommand{
		CommandDescription: cmds.NewCommandDescription(
			"models",
			cmds.WithShort("List the models the endpoint offers"),
			cmds.WithFlags(
				parameters.NewParameterDefinition(
					"match",
					parameters.ParameterTypeString,
					parameters.WithHelp("Only list model ids matching this glob, e.g. 'gpt-4*'"),
					parameters.WithDefault(""),
				),
				parameters.NewParameterDefinition(
					"owner",
					parameters.ParameterTypeString,
					parameters.WithHelp("Only list models whose owner matches this glob"),
					parameters.WithDefault(""),
				),
			),
			cmds.WithLayersList(glazedParameterLayer),
		),
		newClient: func() (*client.Client, error) {
			return newClient(os.Stderr)
		},
	}, nil
}

func (c *ModelsCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *layers.ParsedLayers,
	gp middlewares.Processor,
) error {
	s := &ModelsSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, s); err != nil {
		return errors.Wrap(err, "error initializing settings")
	}

	cl, err := c.newClient()
	if err != nil {
		return err
	}
	models, err := cl.ListModels(ctx)
	if err != nil {
		return err
	}

	return addModelRows(ctx, gp, models, s.Match, s.Owner)
}

func addModelRows(ctx context.Context, gp rowSink, models []go_openai.Model, idGlob string, ownerGlob string) error {
	kept, err := filterModels(models, idGlob, ownerGlob)
	if err != nil {
		return err
	}
	for _, m := range kept {
		row := types.NewRow(
			types.MRP("id", m.ID),
			types.MRP("owned_by", m.OwnedBy),
			types.MRP("created", m.CreatedAt),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// filterModels keeps the models whose id and owner match the globs, an empty
// glob matches everything. The result is sorted by id.
func filterModels(models []go_openai.Model, idGlob string, ownerGlob string) ([]go_openai.Model, error) {
	kept := make([]go_openai.Model, 0, len(models))
	for _, m := range models {
		if idGlob != "" {
			matching, err := glob.Match(idGlob, m.ID)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid match pattern %q", idGlob)
			}
			if !matching {
				continue
			}
		}
		if ownerGlob != "" {
			matching, err := glob.Match(ownerGlob, m.OwnedBy)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid owner pattern %q", ownerGlob)
			}
			if !matching {
				continue
			}
		}
		kept = append(kept, m)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].ID < kept[j].ID })
	return kept, nil
}
