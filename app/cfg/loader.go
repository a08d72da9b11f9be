package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"github.com/lysyi3m/feed-digest/app/source"
	"github.com/lysyi3m/feed-digest/app/state"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Delivery
	FeishuWebhook  string `long:"feishu-webhook" env:"FEISHU_WEBHOOK" description:"Feishu custom bot webhook URL"`
	FeishuSecret   string `long:"feishu-secret" env:"FEISHU_SECRET" description:"Feishu webhook signing secret (optional)"`
	FeishuTitle    string `long:"feishu-title" env:"FEISHU_TITLE" default:"Feed Digest" description:"Digest card title"`
	TelegramToken  string `long:"telegram-token" env:"TELEGRAM_BOT_TOKEN" description:"Telegram bot token"`
	TelegramChatID string `long:"telegram-chat-id" env:"TELEGRAM_CHAT_ID" description:"Telegram chat ID to deliver to"`
	TelegramAPIURL string `long:"telegram-api-url" env:"TELEGRAM_API_URL" description:"Telegram Bot API base URL (optional)"`
	MaxCardItems   int    `long:"max-card-items" env:"MAX_CARD_ITEMS" default:"10" description:"Maximum number of items rendered in one message"`

	// Sources
	YouTubeChannelIDs  string  `long:"youtube-channels" env:"YOUTUBE_CHANNEL_IDS" description:"Comma-separated YouTube channel IDs"`
	RedditSubreddits   string  `long:"reddit-subreddits" env:"REDDIT_SUBREDDITS" description:"Comma-separated subreddit names"`
	RedditClientID     string  `long:"reddit-client-id" env:"REDDIT_CLIENT_ID" description:"Reddit application client ID"`
	RedditClientSecret string  `long:"reddit-client-secret" env:"REDDIT_CLIENT_SECRET" description:"Reddit application client secret"`
	RedditUserAgent    string  `long:"reddit-user-agent" env:"REDDIT_USER_AGENT" default:"feed-digest-bot/0.1" description:"User agent for Reddit API requests"`
	RedditRate         float64 `long:"reddit-rate" env:"REDDIT_RATE" default:"1" description:"Reddit API requests per second (0 disables pacing)"`
	SourcesFile        string  `long:"sources-file" env:"SOURCES_FILE" description:"YAML file with additional sources and filters"`
	MaxItems           int     `long:"max-items" env:"MAX_ITEMS" default:"5" description:"Items fetched per source"`
	HTTPTimeout        int     `long:"http-timeout" env:"HTTP_TIMEOUT" default:"10" description:"HTTP timeout in seconds"`
	UserAgent          string  `long:"user-agent" env:"USER_AGENT" default:"Feed Digest/1.0" description:"User agent string for feed requests"`

	// Incremental state
	StateFile   string `long:"state-file" env:"INCREMENTAL_STATE_FILE" description:"State file or SQLite database path; enables incremental mode"`
	StateDriver string `long:"state-driver" env:"STATE_DRIVER" default:"file" choice:"file" choice:"sqlite" choice:"postgres" choice:"redis" description:"Incremental state backend"`
	StateDSN    string `long:"state-dsn" env:"STATE_DSN" description:"PostgreSQL DSN or Redis URL; enables incremental mode"`
	StateKey    string `long:"state-key" env:"STATE_KEY" description:"Redis hash key for watermarks"`

	// Daemon mode
	Schedule     string `long:"schedule" env:"SCHEDULE" description:"Cron schedule; runs as a daemon when set (e.g. @hourly)"`
	ListenAddr   string `long:"listen" env:"LISTEN_ADDR" description:"Status API listen address in daemon mode (e.g. :8080)"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Logging
	LogLevel  string `long:"log-level" env:"LOG_LEVEL" default:"info" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Log level"`
	LogFormat string `long:"log-format" env:"LOG_FORMAT" default:"console" choice:"console" choice:"json" description:"Log output format"`
}

// ErrHelp is returned by Load when usage was requested and printed.
var ErrHelp = errors.New("help requested")

// Load reads the .env file named by ENV_FILE (default ".env"), then parses
// command-line arguments and environment variables. Variables already set in
// the environment take precedence over the .env file.
func Load(args []string) (*Cfg, error) {
	if err := loadEnvFile(cmp.Or(os.Getenv("ENV_FILE"), ".env")); err != nil {
		return nil, err
	}

	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, ErrHelp
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := raw.validate(); err != nil {
		return nil, err
	}

	cfg := &Cfg{
		FeishuWebhook:      strings.TrimSpace(raw.FeishuWebhook),
		FeishuSecret:       raw.FeishuSecret,
		FeishuTitle:        raw.FeishuTitle,
		TelegramToken:      strings.TrimSpace(raw.TelegramToken),
		TelegramChatID:     strings.TrimSpace(raw.TelegramChatID),
		TelegramAPIURL:     raw.TelegramAPIURL,
		MaxCardItems:       raw.MaxCardItems,
		YouTubeChannelIDs:  SplitList(raw.YouTubeChannelIDs),
		RedditSubreddits:   SplitList(raw.RedditSubreddits),
		RedditClientID:     raw.RedditClientID,
		RedditClientSecret: raw.RedditClientSecret,
		RedditUserAgent:    raw.RedditUserAgent,
		RedditRate:         raw.RedditRate,
		SourcesFile:        raw.SourcesFile,
		MaxItems:           raw.MaxItems,
		HTTPTimeout:        time.Duration(raw.HTTPTimeout) * time.Second,
		UserAgent:          raw.UserAgent,
		StateFile:          expandHome(raw.StateFile),
		StateDriver:        raw.StateDriver,
		StateDSN:           raw.StateDSN,
		StateKey:           raw.StateKey,
		Schedule:           strings.TrimSpace(raw.Schedule),
		ListenAddr:         raw.ListenAddr,
		APIAccessKey:       raw.APIAccessKey,
		LogLevel:           raw.LogLevel,
		LogFormat:          raw.LogFormat,
		Version:            GetVersion(),
	}

	return cfg, nil
}

func (r *rawCfg) validate() error {
	if r.MaxItems <= 0 {
		return fmt.Errorf("invalid MAX_ITEMS %d: must be positive", r.MaxItems)
	}
	if r.MaxCardItems <= 0 {
		return fmt.Errorf("invalid MAX_CARD_ITEMS %d: must be positive", r.MaxCardItems)
	}
	if r.HTTPTimeout <= 0 {
		return fmt.Errorf("invalid HTTP_TIMEOUT %d: must be positive", r.HTTPTimeout)
	}
	if r.RedditRate < 0 {
		return fmt.Errorf("invalid REDDIT_RATE %g: must not be negative", r.RedditRate)
	}
	return nil
}

func loadEnvFile(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load env file %s: %w", path, err)
}

// expandHome replaces a leading "~" with the current user's home directory.
// The path is returned unchanged when the home directory is unknown.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// SplitList splits a comma-separated value, trimming entries and dropping
// empty ones.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Incremental reports whether a state location is configured.
func (c *Cfg) Incremental() bool {
	return c.State().Enabled()
}

func (c *Cfg) State() state.Config {
	return state.Config{
		Driver: c.StateDriver,
		Path:   c.StateFile,
		DSN:    c.StateDSN,
		Key:    c.StateKey,
	}
}

// Daemon reports whether the process should keep running on a schedule.
func (c *Cfg) Daemon() bool {
	return c.Schedule != ""
}

// Specs returns the sources configured through the environment: YouTube
// channels first, then subreddits, each in the order given.
func (c *Cfg) Specs() []source.Spec {
	specs := make([]source.Spec, 0, len(c.YouTubeChannelIDs)+len(c.RedditSubreddits))
	for _, id := range c.YouTubeChannelIDs {
		specs = append(specs, source.Spec{Kind: source.KindYouTube, ID: id})
	}
	for _, sub := range c.RedditSubreddits {
		specs = append(specs, source.Spec{Kind: source.KindReddit, ID: strings.TrimPrefix(sub, "r/")})
	}
	return specs
}

func (c *Cfg) SourceOptions() source.Options {
	return source.Options{
		UserAgent: c.UserAgent,
		Reddit: source.RedditOptions{
			ClientID:     c.RedditClientID,
			ClientSecret: c.RedditClientSecret,
			UserAgent:    c.RedditUserAgent,
			RatePerSec:   c.RedditRate,
		},
	}
}
