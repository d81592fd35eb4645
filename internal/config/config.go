package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	AppEnv  string `mapstructure:"APP_ENV"`
	AppName string `mapstructure:"APP_NAME"`
	Server  struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	TLS struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBName         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Economy Economy `mapstructure:"ECONOMY"`
	Catalog Catalog `mapstructure:"CATALOG"`
}

// Economy holds the point amounts the reward core moves around. Values are
// fixed at startup; changing them never rewrites history because every grant
// and debit is an immutable ledger row.
type Economy struct {
	CompletionPoints     int64         `mapstructure:"COMPLETION_POINTS"`
	Top3CompletionPoints int64         `mapstructure:"TOP3_COMPLETION_POINTS"`
	Top3Cost             int64         `mapstructure:"TOP3_COST"`
	PointsTTL            time.Duration `mapstructure:"POINTS_TTL"`
}

// Catalog is the seed definition for reward items and recipes. Materials
// reference rewards by name; names resolve to ids once, at seed time.
type Catalog struct {
	Rewards []RewardSeed `mapstructure:"REWARDS"`
	Recipes []RecipeSeed `mapstructure:"RECIPES"`
}

type RewardSeed struct {
	Name        string `mapstructure:"NAME"`
	Description string `mapstructure:"DESCRIPTION"`
	PointsValue int64  `mapstructure:"POINTS_VALUE"`
	Active      bool   `mapstructure:"ACTIVE"`
}

type RecipeSeed struct {
	Name      string         `mapstructure:"NAME"`
	Result    string         `mapstructure:"RESULT"`
	Active    bool           `mapstructure:"ACTIVE"`
	Materials []MaterialSeed `mapstructure:"MATERIALS"`
}

type MaterialSeed struct {
	Reward   string `mapstructure:"REWARD"`
	Quantity int64  `mapstructure:"QUANTITY"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		zap.L().Info("no config file found, using environment and defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "questboard")

	v.SetDefault("HTTP_SERVER.ADDR", ":8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)

	v.SetDefault("DATABASE.TYPE", "sqlite")
	v.SetDefault("DATABASE.DBNAME", "questboard.db")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_IDLE_CONN", 5)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_OPEN_CONNS", 25)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_LIFETIME", time.Hour)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_IDLE_TIME", 15*time.Minute)

	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS.DB", 0)
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 30*time.Second)

	v.SetDefault("ECONOMY.COMPLETION_POINTS", 2)
	v.SetDefault("ECONOMY.TOP3_COMPLETION_POINTS", 100)
	v.SetDefault("ECONOMY.TOP3_COST", 300)
	v.SetDefault("ECONOMY.POINTS_TTL", 90*24*time.Hour)
}
