// Package settings holds the configuration consumed by the chat client:
// endpoint and credentials, token limits, history behaviour, and the default
// request parameters merged into every chat completion body.
package settings

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-go-golems/convo/pkg/helpers"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL           = "https://api.openai.com"
	DefaultModel             = "gpt-3.5-turbo"
	DefaultMaxModelTokens    = 4096
	DefaultMaxResponseTokens = 1000
	DefaultTimeout           = 60 * time.Second
	DefaultSystemMessage     = "You are ChatGPT, helping the user with code. You are a smart, helpful and professional developer who always gives correct answers and only does what you are asked to. Your answers are always truthful and never made up."
)

var ErrMissingAPIKey = errors.New("missing api key")

type ClientSettings struct {
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
	// Timeout bounds a whole SendMessage call. Zero or negative disables it.
	Timeout        *time.Duration `yaml:"-"`
	TimeoutSeconds *int           `yaml:"timeout,omitempty"`
	// TimeoutMessage is the message of the error returned on timeout.
	TimeoutMessage string  `yaml:"timeout_message,omitempty"`
	Organization   *string `yaml:"organization,omitempty"`
	UserAgent      *string `yaml:"user_agent,omitempty"`
	// AllowHTTP and AllowLocalNetworks relax the base URL checks, for local
	// OpenAI compatible servers.
	AllowHTTP          bool         `yaml:"allow_http,omitempty"`
	AllowLocalNetworks bool         `yaml:"allow_local_networks,omitempty"`
	Debug              bool         `yaml:"debug,omitempty"`
	HTTPClient         *http.Client `yaml:"-" json:"-"`
}

// UnmarshalYAML reads timeout as an integer number of seconds.
func (cs *ClientSettings) UnmarshalYAML(value *yaml.Node) error {
	type Alias ClientSettings
	if err := value.Decode((*Alias)(cs)); err != nil {
		return err
	}
	if cs.TimeoutSeconds != nil {
		t := time.Duration(*cs.TimeoutSeconds) * time.Second
		cs.Timeout = &t
	}
	return nil
}

// Clone deep copies the settings but shares HTTPClient, which holds
// connection state that must not be copied.
func (cs *ClientSettings) Clone() *ClientSettings {
	if cs == nil {
		return nil
	}
	httpClient := cs.HTTPClient
	shallow := *cs
	shallow.HTTPClient = nil
	ret := clone.Clone(&shallow).(*ClientSettings)
	ret.HTTPClient = httpClient
	return ret
}

type ChatSettings struct {
	Engine            *string  `yaml:"engine,omitempty"`
	MaxModelTokens    int      `yaml:"max_model_tokens,omitempty"`
	MaxResponseTokens int      `yaml:"max_response_tokens,omitempty"`
	IncludeHistory    bool     `yaml:"include_history"`
	SystemMessage     string   `yaml:"system_message,omitempty"`
	Temperature       *float64 `yaml:"temperature,omitempty"`
	TopP              *float64 `yaml:"top_p,omitempty"`
	Stop              []string `yaml:"stop,omitempty"`
	// Markdown2HTML runs assistant content through the markdown to HTML
	// transform.
	Markdown2HTML bool `yaml:"markdown2html,omitempty"`
	// Encoding is the tokenizer encoding used for budgeting. Empty means the
	// encoding registered for Engine, or cl100k_base.
	Encoding string `yaml:"encoding,omitempty"`
	// RequestParams are extra body parameters, they override the typed
	// defaults above.
	RequestParams map[string]interface{} `yaml:"request_params,omitempty"`
}

func (s *ChatSettings) Clone() *ChatSettings {
	return clone.Clone(s).(*ChatSettings)
}

type OpenAISettings struct {
	PresencePenalty  *float64      `yaml:"presence_penalty,omitempty"`
	FrequencyPenalty *float64      `yaml:"frequency_penalty,omitempty"`
	LogitBias        map[string]int `yaml:"logit_bias,omitempty"`
	User             *string        `yaml:"user,omitempty"`
}

func (s *OpenAISettings) Clone() *OpenAISettings {
	return clone.Clone(s).(*OpenAISettings)
}

type Settings struct {
	Client *ClientSettings `yaml:"client,omitempty"`
	Chat   *ChatSettings   `yaml:"chat,omitempty"`
	OpenAI *OpenAISettings `yaml:"openai,omitempty"`
}

func NewClientSettings() *ClientSettings {
	defaultTimeout := DefaultTimeout
	return &ClientSettings{
		BaseURL: DefaultBaseURL,
		Timeout: &defaultTimeout,
		TimeoutSeconds: func() *int {
			i := int(defaultTimeout.Seconds())
			return &i
		}(),
	}
}

func NewChatSettings() *ChatSettings {
	return &ChatSettings{
		Engine:            helpers.Ptr(DefaultModel),
		MaxModelTokens:    DefaultMaxModelTokens,
		MaxResponseTokens: DefaultMaxResponseTokens,
		IncludeHistory:    true,
		SystemMessage:     DefaultSystemMessage,
		Temperature:       helpers.Ptr(0.8),
		TopP:              helpers.Ptr(1.0),
		Stop:              []string{},
		RequestParams:     map[string]interface{}{},
	}
}

func NewOpenAISettings() *OpenAISettings {
	return &OpenAISettings{
		PresencePenalty: helpers.Ptr(1.0),
		LogitBias:       map[string]int{},
	}
}

func NewSettings() *Settings {
	return &Settings{
		Client: NewClientSettings(),
		Chat:   NewChatSettings(),
		OpenAI: NewOpenAISettings(),
	}
}

func (s *Settings) Clone() *Settings {
	if s == nil {
		return nil
	}
	ret := &Settings{
		Client: s.Client.Clone(),
	}
	if s.Chat != nil {
		ret.Chat = s.Chat.Clone()
	}
	if s.OpenAI != nil {
		ret.OpenAI = s.OpenAI.Clone()
	}
	return ret
}

// LoadYAML reads settings from path on top of the defaults.
func LoadYAML(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading settings from %s", path)
	}
	s := NewSettings()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, errors.Wrapf(err, "parsing settings from %s", path)
	}
	return s, nil
}

// Validate checks what the client needs before sending anything.
func (s *Settings) Validate() error {
	if s.Client == nil || s.Chat == nil {
		return errors.New("incomplete settings")
	}
	if strings.TrimSpace(s.Client.APIKey) == "" {
		return ErrMissingAPIKey
	}
	if s.Client.BaseURL == "" {
		return errors.New("missing base url")
	}
	if s.Chat.MaxResponseTokens < 1 {
		return errors.Errorf("max response tokens must be at least 1, got %d", s.Chat.MaxResponseTokens)
	}
	if s.Chat.MaxModelTokens <= s.Chat.MaxResponseTokens {
		return errors.Errorf("max model tokens (%d) must exceed max response tokens (%d)",
			s.Chat.MaxModelTokens, s.Chat.MaxResponseTokens)
	}
	return nil
}

// TimeoutDuration is the effective call timeout, zero when disabled.
func (s *Settings) TimeoutDuration() time.Duration {
	if s.Client == nil || s.Client.Timeout == nil {
		return 0
	}
	return *s.Client.Timeout
}

// DefaultRequestParams returns the body parameters every chat completion
// starts from: the typed settings that are set, overridden by
// Chat.RequestParams.
func (s *Settings) DefaultRequestParams() map[string]interface{} {
	ret := map[string]interface{}{}
	if s.Chat != nil {
		if s.Chat.Engine != nil {
			ret["model"] = *s.Chat.Engine
		}
		if s.Chat.Temperature != nil {
			ret["temperature"] = *s.Chat.Temperature
		}
		if s.Chat.TopP != nil {
			ret["top_p"] = *s.Chat.TopP
		}
		if len(s.Chat.Stop) > 0 {
			ret["stop"] = append([]string(nil), s.Chat.Stop...)
		}
	}
	if s.OpenAI != nil {
		if s.OpenAI.PresencePenalty != nil {
			ret["presence_penalty"] = *s.OpenAI.PresencePenalty
		}
		if s.OpenAI.FrequencyPenalty != nil {
			ret["frequency_penalty"] = *s.OpenAI.FrequencyPenalty
		}
		if len(s.OpenAI.LogitBias) > 0 {
			lb := make(map[string]int, len(s.OpenAI.LogitBias))
			for k, v := range s.OpenAI.LogitBias {
				lb[k] = v
			}
			ret["logit_bias"] = lb
		}
		if s.OpenAI.User != nil {
			ret["user"] = *s.OpenAI.User
		}
	}
	if s.Chat != nil {
		for k, v := range s.Chat.RequestParams {
			ret[k] = v
		}
	}
	return ret
}
