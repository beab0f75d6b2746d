package settings

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-go-golems/convo/pkg/helpers"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Viper keys understood by FromViper. The CLI binds its flags to the same
// names, and the environment is read with the CONVO_ prefix.
const (
	KeyAPIKey             = "api-key"
	KeyBaseURL            = "base-url"
	KeyOrganization       = "organization"
	KeyUserAgent          = "user-agent"
	KeyTimeout            = "timeout"
	KeyAllowHTTP          = "allow-http"
	KeyAllowLocalNetworks = "allow-local-networks"
	KeyDebug              = "debug"
	KeyModel              = "model"
	KeyMaxModelTokens     = "max-model-tokens"
	KeyMaxResponseTokens  = "max-response-tokens"
	KeyIncludeHistory     = "include-history"
	KeySystemMessage      = "system-message"
	KeyTemperature        = "temperature"
	KeyTopP               = "top-p"
	KeyPresencePenalty    = "presence-penalty"
	KeyFrequencyPenalty   = "frequency-penalty"
	KeyMarkdown2HTML      = "markdown2html"
	KeyEncoding           = "encoding"
	KeyUser               = "user"
)

// FromViper overlays every key set in v onto the defaults. Timeout accepts a
// duration string ("90s") or a plain number of seconds ("1.5").
func FromViper(v *viper.Viper) (*Settings, error) {
	s := NewSettings()
	if v == nil {
		return s, nil
	}

	if v.IsSet(KeyAPIKey) {
		s.Client.APIKey = v.GetString(KeyAPIKey)
	}
	if v.IsSet(KeyBaseURL) {
		s.Client.BaseURL = v.GetString(KeyBaseURL)
	}
	if v.IsSet(KeyOrganization) && v.GetString(KeyOrganization) != "" {
		s.Client.Organization = helpers.Ptr(v.GetString(KeyOrganization))
	}
	if v.IsSet(KeyUserAgent) && v.GetString(KeyUserAgent) != "" {
		s.Client.UserAgent = helpers.Ptr(v.GetString(KeyUserAgent))
	}
	if v.IsSet(KeyTimeout) {
		t, err := parseTimeout(v.Get(KeyTimeout))
		if err != nil {
			return nil, err
		}
		s.Client.Timeout = &t
		secs := int(math.Ceil(t.Seconds()))
		s.Client.TimeoutSeconds = &secs
	}
	if v.IsSet(KeyAllowHTTP) {
		s.Client.AllowHTTP = v.GetBool(KeyAllowHTTP)
	}
	if v.IsSet(KeyAllowLocalNetworks) {
		s.Client.AllowLocalNetworks = v.GetBool(KeyAllowLocalNetworks)
	}
	if v.IsSet(KeyDebug) {
		s.Client.Debug = v.GetBool(KeyDebug)
	}

	if v.IsSet(KeyModel) {
		s.Chat.Engine = helpers.Ptr(v.GetString(KeyModel))
	}
	if v.IsSet(KeyMaxModelTokens) {
		s.Chat.MaxModelTokens = v.GetInt(KeyMaxModelTokens)
	}
	if v.IsSet(KeyMaxResponseTokens) {
		s.Chat.MaxResponseTokens = v.GetInt(KeyMaxResponseTokens)
	}
	if v.IsSet(KeyIncludeHistory) {
		s.Chat.IncludeHistory = v.GetBool(KeyIncludeHistory)
	}
	if v.IsSet(KeySystemMessage) {
		s.Chat.SystemMessage = v.GetString(KeySystemMessage)
	}
	if v.IsSet(KeyTemperature) {
		s.Chat.Temperature = helpers.Ptr(v.GetFloat64(KeyTemperature))
	}
	if v.IsSet(KeyTopP) {
		s.Chat.TopP = helpers.Ptr(v.GetFloat64(KeyTopP))
	}
	if v.IsSet(KeyMarkdown2HTML) {
		s.Chat.Markdown2HTML = v.GetBool(KeyMarkdown2HTML)
	}
	if v.IsSet(KeyEncoding) {
		s.Chat.Encoding = v.GetString(KeyEncoding)
	}

	if v.IsSet(KeyPresencePenalty) {
		s.OpenAI.PresencePenalty = helpers.Ptr(v.GetFloat64(KeyPresencePenalty))
	}
	if v.IsSet(KeyFrequencyPenalty) {
		s.OpenAI.FrequencyPenalty = helpers.Ptr(v.GetFloat64(KeyFrequencyPenalty))
	}
	if v.IsSet(KeyUser) && v.GetString(KeyUser) != "" {
		s.OpenAI.User = helpers.Ptr(v.GetString(KeyUser))
	}

	return s, nil
}

// parseTimeout reads numbers as seconds and everything else as a Go
// duration string.
func parseTimeout(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case time.Duration:
		return v, nil
	case string:
		v = strings.TrimSpace(v)
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return secondsToDuration(f)
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, errors.Errorf("invalid timeout %q, want seconds or a duration like 90s", v)
		}
		return d, nil
	default:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return 0, errors.Wrapf(err, "invalid timeout %v", v)
		}
		return secondsToDuration(f)
	}
}

func secondsToDuration(f float64) (time.Duration, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt64/float64(time.Second) {
		return 0, errors.Errorf("invalid timeout %v seconds", f)
	}
	return time.Duration(f * float64(time.Second)), nil
}
