package cmds

import (
	"context"
	"time"

	"github.com/go-go-golems/convo/pkg/tokens"
	"github.com/go-go-golems/convo/pkg/toolbox"
	"github.com/pkg/errors"
)

type CurrentTimeArgs struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA time zone such as Europe/Paris, defaults to UTC"`
}

type CountTokensArgs struct {
	Text     string `json:"text" jsonschema:"description=Text to count"`
	Encoding string `json:"encoding,omitempty" jsonschema:"description=BPE encoding, defaults to cl100k_base"`
}

type TokenCount struct {
	Encoding string `json:"encoding"`
	Tokens   int    `json:"tokens"`
}

func currentTime(args CurrentTimeArgs) (string, error) {
	loc := time.UTC
	if args.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(args.Timezone)
		if err != nil {
			return "", errors.Wrapf(err, "unknown time zone %q", args.Timezone)
		}
	}
	return time.Now().In(loc).Format(time.RFC3339), nil
}

func countTokens(_ context.Context, args CountTokensArgs) TokenCount {
	e := tokens.NewTiktokenEstimator(args.Encoding)
	return TokenCount{Encoding: e.Name(), Tokens: e.Count(args.Text)}
}

// builtinToolbox holds the tools offered by --tools.
func builtinToolbox() (*toolbox.Toolbox, error) {
	tb := toolbox.New()
	if err := tb.Register("current_time", "Get the current date and time", currentTime); err != nil {
		return nil, err
	}
	if err := tb.Register("count_tokens", "Count the tokens of a text", countTokens); err != nil {
		return nil, err
	}
	return tb, nil
}
