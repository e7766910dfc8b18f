package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App          App          `mapstructure:"app"`
	LLM          LLM          `mapstructure:"llm"`
	Arxiv        Arxiv        `mapstructure:"arxiv"`
	Search       Search       `mapstructure:"search"`
	Analysis     Analysis     `mapstructure:"analysis"`
	Notification Notification `mapstructure:"notification"`
	News         News         `mapstructure:"news"`
	Advanced     Advanced     `mapstructure:"advanced"`
}

// App holds general application configuration
type App struct {
	Debug       bool   `mapstructure:"debug"`
	DataDir     string `mapstructure:"data_dir"`
	SourcesFile string `mapstructure:"sources_file"`
}

// LLM holds the provider configuration. Provider, model and API key are
// required; validation happens in Validate, not Load, so callers can skip it.
type LLM struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
}

// Arxiv holds arXiv fetch configuration
type Arxiv struct {
	Categories   []string `mapstructure:"categories"`
	MaxResults   int      `mapstructure:"max_results"`
	MaxPages     int      `mapstructure:"max_pages"`
	RequestDelay float64  `mapstructure:"request_delay"`
	Timeout      float64  `mapstructure:"timeout"`
}

// Search holds the web-search tool configuration (deep analysis)
type Search struct {
	API          string `mapstructure:"api"`
	TavilyAPIKey string `mapstructure:"tavily_api_key"`
	MaxResults   int    `mapstructure:"max_results"`
	Timeout      int    `mapstructure:"timeout"`
}

// Analysis holds light/deep analysis configuration
type Analysis struct {
	MaxConcurrent         int `mapstructure:"max_concurrent"`
	Timeout               int `mapstructure:"timeout"`
	MaxResearchIterations int `mapstructure:"max_research_iterations"`
	MaxWriteIterations    int `mapstructure:"max_write_iterations"`
}

// Notification holds outbound notification configuration
type Notification struct {
	FeishuWebhookURL string `mapstructure:"feishu_webhook_url"`
	SiteURL          string `mapstructure:"site_url"`
	Language         string `mapstructure:"language"`
	MaxPapers        int    `mapstructure:"max_papers"`
	MaxNews          int    `mapstructure:"max_news"`
	Timeout          int    `mapstructure:"timeout"`
	MaxRetries       int    `mapstructure:"max_retries"`
}

// News holds news ingestion configuration
type News struct {
	Hours                int     `mapstructure:"hours"`
	RSSTimeout           float64 `mapstructure:"rss_timeout"`
	RSSMaxConcurrent     int     `mapstructure:"rss_max_concurrent"`
	CrawlerMaxConcurrent int     `mapstructure:"crawler_max_concurrent"`
	CrawlerTimeout       float64 `mapstructure:"crawler_timeout"`
	Headless             bool    `mapstructure:"headless"`
}

// Advanced holds tuning knobs that rarely need changing
type Advanced struct {
	LLMTimeout       int     `mapstructure:"llm_timeout"`
	LLMMaxRetries    int     `mapstructure:"llm_max_retries"`
	RSSHours         int     `mapstructure:"rss_hours"`
	RSSMaxConcurrent int     `mapstructure:"rss_max_concurrent"`
	RSSTimeout       float64 `mapstructure:"rss_timeout"`
}

var globalConfig *Config

// Load loads the configuration from config file, environment and defaults.
// Precedence: config file > environment > defaults.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	// Configure viper
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".insight")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.App.DataDir != "" {
		config.App.DataDir = expandPath(config.App.DataDir)
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.debug", false)
	viper.SetDefault("app.data_dir", "data")
	viper.SetDefault("app.sources_file", "config/news_sources.yaml")

	// Arxiv defaults
	viper.SetDefault("arxiv.categories", []string{"cs.AI", "cs.CL", "cs.CV", "cs.LG"})
	viper.SetDefault("arxiv.max_results", 100)
	viper.SetDefault("arxiv.max_pages", 20)
	viper.SetDefault("arxiv.request_delay", 3.0)
	viper.SetDefault("arxiv.timeout", 60.0)

	// Search defaults
	viper.SetDefault("search.api", "duckduckgo")
	viper.SetDefault("search.max_results", 5)
	viper.SetDefault("search.timeout", 30)

	// Analysis defaults
	viper.SetDefault("analysis.max_concurrent", 20)
	viper.SetDefault("analysis.timeout", 60)
	viper.SetDefault("analysis.max_research_iterations", 5)
	viper.SetDefault("analysis.max_write_iterations", 3)

	// Notification defaults
	viper.SetDefault("notification.language", "zh")
	viper.SetDefault("notification.max_papers", 10)
	viper.SetDefault("notification.max_news", 5)
	viper.SetDefault("notification.timeout", 30)
	viper.SetDefault("notification.max_retries", 3)

	// News defaults
	viper.SetDefault("news.hours", 168)
	viper.SetDefault("news.rss_timeout", 30.0)
	viper.SetDefault("news.rss_max_concurrent", 10)
	viper.SetDefault("news.crawler_max_concurrent", 3)
	viper.SetDefault("news.crawler_timeout", 60.0)
	viper.SetDefault("news.headless", true)

	// Advanced defaults
	viper.SetDefault("advanced.llm_timeout", 60)
	viper.SetDefault("advanced.llm_max_retries", 3)
	viper.SetDefault("advanced.rss_hours", 24)
	viper.SetDefault("advanced.rss_max_concurrent", 20)
	viper.SetDefault("advanced.rss_timeout", 30.0)
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables() {
	bindEnvKeys("llm.provider", []string{
		"LLM_PROVIDER",
	})

	bindEnvKeys("llm.model", []string{
		"LLM_MODEL",
	})

	// LLM API key - support multiple formats
	bindEnvKeys("llm.api_key", []string{
		"LLM_API_KEY",
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	bindEnvKeys("search.tavily_api_key", []string{
		"TAVILY_API_KEY",
	})

	bindEnvKeys("notification.feishu_webhook_url", []string{
		"FEISHU_WEBHOOK_URL",
		"FEISHU_WEBHOOK",
	})

	bindEnvKeys("notification.site_url", []string{
		"SITE_URL",
	})

	bindEnvKeys("app.debug", []string{
		"DEBUG",
		"INSIGHT_DEBUG",
	})

	bindEnvKeys("app.data_dir", []string{
		"INSIGHT_DATA_DIR",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// Validate ensures required configuration is present. It is called by the
// CLI entry points unless --skip-config-check is given.
func Validate(config *Config) error {
	var errors []string

	if config.LLM.Provider == "" {
		errors = append(errors, "llm.provider is required. Set LLM_PROVIDER environment variable or llm.provider in config file")
	}
	if config.LLM.Model == "" {
		errors = append(errors, "llm.model is required. Set LLM_MODEL environment variable or llm.model in config file")
	}
	if config.LLM.APIKey == "" {
		errors = append(errors, "llm.api_key is required. Set LLM_API_KEY environment variable or llm.api_key in config file")
	}

	if config.Search.API != "" {
		switch config.Search.API {
		case "tavily":
			if config.Search.TavilyAPIKey == "" {
				errors = append(errors, "Tavily search requires an API key. Set TAVILY_API_KEY environment variable")
			}
		case "duckduckgo":
			// No API key needed
		default:
			errors = append(errors, fmt.Sprintf("Unknown search API: %s. Supported: tavily, duckduckgo", config.Search.API))
		}
	}

	if config.Notification.Language != "" &&
		config.Notification.Language != "zh" && config.Notification.Language != "en" {
		errors = append(errors, fmt.Sprintf("Unknown notification language: %s. Supported: zh, en", config.Notification.Language))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Convenience getters for commonly used configuration values
func GetApp() App                   { return Get().App }
func GetLLM() LLM                   { return Get().LLM }
func GetArxiv() Arxiv               { return Get().Arxiv }
func GetSearch() Search             { return Get().Search }
func GetAnalysis() Analysis         { return Get().Analysis }
func GetNotification() Notification { return Get().Notification }
func GetNews() News                 { return Get().News }
func GetAdvanced() Advanced         { return Get().Advanced }

func GetDataDir() string { return Get().App.DataDir }
func IsDebugMode() bool  { return Get().App.Debug }

// ArxivWindowHours returns the daily arXiv time window in hours. The
// ARXIV_HOURS environment variable overrides the default of 25.
func ArxivWindowHours() int {
	if v := os.Getenv("ARXIV_HOURS"); v != "" {
		if hours, err := strconv.Atoi(v); err == nil && hours > 0 {
			return hours
		}
	}
	return 25
}

// GitHubRepo returns (owner, name) parsed from GITHUB_REPOSITORY, falling
// back to GITHUB_REPOSITORY_OWNER for the owner part.
func GitHubRepo() (string, string) {
	repo := os.Getenv("GITHUB_REPOSITORY")
	if owner, name, ok := strings.Cut(repo, "/"); ok {
		return owner, name
	}
	return os.Getenv("GITHUB_REPOSITORY_OWNER"), repo
}

// Reset clears the global configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viper.Reset()
}
