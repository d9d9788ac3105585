package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github-trending-digest/internal/common"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	LLM      LLMConfig      `yaml:"llm"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Schedule ScheduleConfig `yaml:"schedule"`
	GitHub   GitHubConfig   `yaml:"github"`
	Trending TrendingConfig `yaml:"trending"`
	Auth     AuthConfig     `yaml:"auth"`
	Trigger  TriggerConfig  `yaml:"trigger"`
	Feishu   FeishuConfig   `yaml:"feishu"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test
}

func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // postgres, sqlite
	DSN    string `yaml:"dsn"`
}

// RedisConfig 未启用时进度和触发计数只保存在内存里
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"` // openai, gemini
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
}

type SMTPConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	User     string   `yaml:"user"`
	Password string   `yaml:"password"`
	EmailTo  []string `yaml:"email_to"`
}

type ScheduleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hour     int    `yaml:"cron_hour"`
	Minute   int    `yaml:"cron_minute"`
	Timezone string `yaml:"timezone"`
}

// Spec 返回 robfig/cron 的标准五段表达式
func (s ScheduleConfig) Spec() string {
	return fmt.Sprintf("%d %d * * *", s.Minute, s.Hour)
}

type GitHubConfig struct {
	Token string `yaml:"token"`
}

type TrendingConfig struct {
	Languages   []string      `yaml:"languages"`
	MaxProjects int           `yaml:"max_projects"`
	DedupDays   int           `yaml:"dedup_days"`
	MinDelay    time.Duration `yaml:"min_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	MaxRetries  int           `yaml:"max_retries"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type TriggerConfig struct {
	DailyLimit int `yaml:"daily_limit"`
}

type FeishuConfig struct {
	Webhook   string `yaml:"webhook"`
	ReportURL string `yaml:"report_url"` // 卡片里“查看日报”按钮的链接
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load 读取配置：默认值 -> yaml 文件 -> .env / 环境变量
// 配置文件不存在时只使用默认值和环境变量。
func Load(path string) (*Config, error) {
	// .env 不存在不算错误
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, common.WrapError(common.ErrCodeConfig, "解析配置文件失败", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, common.WrapError(common.ErrCodeConfig, "读取配置文件失败", err)
		}
	}

	cfg.overrideFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8080",
			Mode: "release",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "trending.db",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		LLM: LLMConfig{
			Provider: "openai",
			BaseURL:  "https://dashscope.aliyuncs.com/compatible-mode/v1",
			Model:    "qwen-plus",
		},
		SMTP: SMTPConfig{
			Host: "smtp.qq.com",
			Port: 465,
		},
		Schedule: ScheduleConfig{
			Enabled:  true,
			Hour:     9,
			Minute:   0,
			Timezone: "Asia/Shanghai",
		},
		Trending: TrendingConfig{
			Languages:   []string{"python", "javascript", "typescript", "vue", "go", "rust"},
			MaxProjects: 25,
			DedupDays:   7,
			MinDelay:    1 * time.Second,
			MaxDelay:    3 * time.Second,
			MaxRetries:  3,
		},
		Trigger: TriggerConfig{
			DailyLimit: 3,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate 检查会导致运行期出错的配置
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return common.NewError(common.ErrCodeConfig, fmt.Sprintf("不支持的数据库驱动: %q", c.Database.Driver))
	}
	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		return common.NewError(common.ErrCodeConfig, fmt.Sprintf("不支持的 LLM provider: %q", c.LLM.Provider))
	}
	if c.Schedule.Hour < 0 || c.Schedule.Hour > 23 || c.Schedule.Minute < 0 || c.Schedule.Minute > 59 {
		return common.NewError(common.ErrCodeConfig, fmt.Sprintf("定时时间非法: %02d:%02d", c.Schedule.Hour, c.Schedule.Minute))
	}
	if c.Trending.MinDelay > c.Trending.MaxDelay {
		return common.NewError(common.ErrCodeConfig, "trending.min_delay 不能大于 max_delay")
	}
	if c.Trending.MaxProjects <= 0 {
		c.Trending.MaxProjects = 25
	}
	return nil
}

// Location 解析调度时区，非法时回退到本地时区
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) overrideFromEnv() {
	setString(&c.Server.Host, "SERVER_HOST")
	setString(&c.Server.Port, "SERVER_PORT")
	setString(&c.Server.Mode, "SERVER_MODE")
	setString(&c.Database.Driver, "DB_DRIVER")
	setString(&c.Database.DSN, "DB_DSN")

	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.APIKey, "LLM_API_KEY")
	setString(&c.LLM.BaseURL, "LLM_BASE_URL")
	setString(&c.LLM.Model, "LLM_MODEL")
	// 兼容只配置了 GEMINI_API_KEY 的旧部署
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && c.LLM.APIKey == "" {
		c.LLM.Provider = "gemini"
		c.LLM.APIKey = key
	}

	setString(&c.SMTP.Host, "SMTP_HOST")
	setInt(&c.SMTP.Port, "SMTP_PORT")
	setString(&c.SMTP.User, "SMTP_USER")
	setString(&c.SMTP.Password, "SMTP_PASSWORD")
	setList(&c.SMTP.EmailTo, "EMAIL_TO")

	setInt(&c.Schedule.Hour, "CRON_HOUR")
	setInt(&c.Schedule.Minute, "CRON_MINUTE")
	setString(&c.Schedule.Timezone, "TZ_NAME")

	setString(&c.GitHub.Token, "GITHUB_TOKEN")
	setList(&c.Trending.Languages, "TRENDING_LANGUAGES")
	setInt(&c.Trending.MaxProjects, "MAX_PROJECTS")
	setInt(&c.Trending.DedupDays, "DEDUP_DAYS")

	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	setInt(&c.Trigger.DailyLimit, "TRIGGER_DAILY_LIMIT")
	setString(&c.Feishu.Webhook, "FEISHU_WEBHOOK")
	setString(&c.Feishu.ReportURL, "FEISHU_REPORT_URL")
	setString(&c.Log.Level, "LOG_LEVEL")

	// 格式: redis://:password@host:port/db
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.Enabled = true
		c.parseRedisURL(redisURL)
	}
}

func (c *Config) parseRedisURL(redisURL string) {
	url := strings.TrimPrefix(redisURL, "redis://")

	if atIdx := strings.Index(url, "@"); atIdx != -1 {
		authPart := url[:atIdx]
		url = url[atIdx+1:]
		if colonIdx := strings.Index(authPart, ":"); colonIdx != -1 {
			c.Redis.Password = authPart[colonIdx+1:]
		}
	}

	if slashIdx := strings.LastIndex(url, "/"); slashIdx != -1 {
		if db, err := strconv.Atoi(url[slashIdx+1:]); err == nil {
			c.Redis.DB = db
		}
		url = url[:slashIdx]
	}

	c.Redis.Addr = url
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// setList 逗号分隔，空项忽略
func setList(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}
