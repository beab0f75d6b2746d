package cmds

import (
	"context"
	"sort"
	"strings"

	"github.com/go-go-golems/convo/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/layers"
	"github.com/go-go-golems/glazed/pkg/cmds/parameters"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	glazed_settings "github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type ConfigSettings struct {
	Reveal bool `glazed.parameter:"reveal"`
}

type ConfigCommand struct {
	*cmds.CommandDescription
}

var _ cmds.GlazeCommand = (*ConfigCommand)(nil)

func NewConfigCommand() (*ConfigCommand, error) {
	glazedParameterLayer, err := glazed_settings.NewGlazedParameterLayers()
	if err != nil {
		return nil, errors.Wrap(err, "could not create glazed parameter layer")
	}

	return &ConfigCommand{
		CommandDescription: cmds.NewCommandDescription(
			"config",
			cmds.WithShort("Print the effective settings, one row per key"),
			cmds.WithFlags(
				parameters.NewParameterDefinition(
					"reveal",
					parameters.ParameterTypeBool,
					parameters.WithHelp("Print the api key unmasked"),
					parameters.WithDefault(false),
				),
			),
			cmds.WithLayersList(glazedParameterLayer),
		),
	}, nil
}

func (c *ConfigCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *layers.ParsedLayers,
	gp middlewares.Processor,
) error {
	cs := &ConfigSettings{}
	if err := parsedLayers.InitializeStruct(layers.DefaultSlug, cs); err != nil {
		return errors.Wrap(err, "error initializing settings")
	}

	s, err := loadSettings()
	if err != nil {
		return err
	}
	return addSettingRows(ctx, gp, s, cs.Reveal)
}

// addSettingRows writes the settings as they would be saved to a config
// file, with nested keys joined by dots.
func addSettingRows(ctx context.Context, gp rowSink, s *settings.Settings, reveal bool) error {
	s = s.Clone()
	if !reveal {
		s.Client.APIKey = maskSecret(s.Client.APIKey)
	}

	b, err := yaml.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "marshaling settings")
	}
	tree := map[string]interface{}{}
	if err := yaml.Unmarshal(b, &tree); err != nil {
		return errors.Wrap(err, "reading back settings")
	}

	flat := map[string]interface{}{}
	flatten("", tree, flat)
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		row := types.NewRow(
			types.MRP("key", k),
			types.MRP("value", flat[k]),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func flatten(prefix string, v interface{}, out map[string]interface{}) {
	m, ok := v.(map[string]interface{})
	if !ok || len(m) == 0 {
		out[prefix] = v
		return
	}
	for k, child := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		flatten(key, child, out)
	}
}

func maskSecret(secret string) string {
	if len(secret) <= 8 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:3] + strings.Repeat("*", len(secret)-7) + secret[len(secret)-4:]
}
