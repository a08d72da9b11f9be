package cfg

import (
	"time"
)

type Cfg struct {
	// Delivery
	FeishuWebhook  string
	FeishuSecret   string
	FeishuTitle    string
	TelegramToken  string
	TelegramChatID string
	TelegramAPIURL string
	MaxCardItems   int

	// Sources
	YouTubeChannelIDs  []string
	RedditSubreddits   []string
	RedditClientID     string
	RedditClientSecret string
	RedditUserAgent    string
	RedditRate         float64
	SourcesFile        string
	MaxItems           int
	HTTPTimeout        time.Duration
	UserAgent          string

	// Incremental state
	StateFile   string
	StateDriver string
	StateDSN    string
	StateKey    string

	// Daemon mode
	Schedule     string
	ListenAddr   string
	APIAccessKey string

	// Logging
	LogLevel  string
	LogFormat string

	Version string
}
