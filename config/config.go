package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Bot       BotConfig       `mapstructure:"bot"`
	Battle    BattleConfig    `mapstructure:"battle"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Security  SecurityConfig  `mapstructure:"security"`
	Transport TransportConfig `mapstructure:"transport"`
}

type ServerConfig struct {
	Port  int  `mapstructure:"port"`
	Debug bool `mapstructure:"debug"`
	// AdminKeyHash is a bcrypt hash of the X-Admin-Key header value.
	AdminKeyHash string `mapstructure:"admin_key_hash"`
}

// BotConfig describes the controlled entity and its pacing.
type BotConfig struct {
	Name       string   `mapstructure:"name"`
	Controlled []string `mapstructure:"controlled"` // extra short ids commanded with the "!<name>" form

	AutoEnter       bool          `mapstructure:"auto_enter"`
	MinOtherPlayers int           `mapstructure:"min_other_players"`
	EntryMargin     time.Duration `mapstructure:"entry_margin"`

	ThinkMin time.Duration `mapstructure:"think_min"`
	ThinkMax time.Duration `mapstructure:"think_max"`

	AcquireCatalog  bool          `mapstructure:"acquire_catalog"`
	AcquirePoll     time.Duration `mapstructure:"acquire_poll"`
	AcquireAttempts int           `mapstructure:"acquire_attempts"`

	RetryDelay time.Duration `mapstructure:"retry_delay"`
	MaxRetries int           `mapstructure:"max_retries"`

	Skills SkillToggles `mapstructure:"skills"`
}

type SkillToggles struct {
	Taunt      bool `mapstructure:"taunt"`
	ShadowCopy bool `mapstructure:"shadowcopy"`
	Analysis   bool `mapstructure:"analysis"`
}

type BattleConfig struct {
	EntryWindow time.Duration `mapstructure:"entry_window"`
	// DarknessTurns maps battle type to the darkness countdown; 0 disables it.
	DarknessTurns map[string]int `mapstructure:"darkness_turns"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
	FlushEvery   time.Duration `mapstructure:"flush_every"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// AllowedOrigins lists the WebSocket/SSE origins that are permitted.
	// An empty slice allows all origins (useful for local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// AdminIPs restricts the admin API to these addresses or CIDR ranges.
	AdminIPs []string `mapstructure:"admin_ips"`
}

// TransportConfig throttles outgoing command lines.
type TransportConfig struct {
	CommandRPS   float64 `mapstructure:"command_rps"`
	CommandBurst int     `mapstructure:"command_burst"`
}

// Load reads config from the given YAML file path.
// Environment variables prefixed with ARENA_ override file values
// (ARENA_BOT_NAME overrides bot.name).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("arena")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return unmarshal(v)
}

// Default returns the configuration with every default applied and no file read.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := unmarshal(v)
	if err != nil {
		panic(err)
	}
	return cfg
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("bot.name", "ArenaBot")
	v.SetDefault("bot.auto_enter", true)
	v.SetDefault("bot.min_other_players", 1)
	v.SetDefault("bot.entry_margin", "10s")
	v.SetDefault("bot.think_min", "3s")
	v.SetDefault("bot.think_max", "7s")
	v.SetDefault("bot.acquire_catalog", true)
	v.SetDefault("bot.acquire_poll", "250ms")
	v.SetDefault("bot.acquire_attempts", 120)
	v.SetDefault("bot.retry_delay", "2s")
	v.SetDefault("bot.max_retries", 2)
	v.SetDefault("bot.skills.taunt", true)
	v.SetDefault("bot.skills.shadowcopy", true)
	v.SetDefault("bot.skills.analysis", true)
	v.SetDefault("battle.entry_window", "2m")
	v.SetDefault("battle.darkness_turns", map[string]int{
		"normal":     10,
		"boss":       12,
		"gauntlet":   15,
		"siege":      20,
		"dragonhunt": 12,
		"torment":    10,
		"npc-duel":   0,
		"pvp":        0,
	})
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/arena.db")
	v.SetDefault("database.mysql_max_open", 20)
	v.SetDefault("database.mysql_max_idle", 5)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("database.flush_every", "30s")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.rate_limit_rps", 20)
	v.SetDefault("security.rate_limit_burst", 40)
	v.SetDefault("transport.command_rps", 1)
	v.SetDefault("transport.command_burst", 3)
}
