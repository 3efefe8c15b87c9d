// Package config loads the inbound change processor's configuration from
// command-line flags and environment variables.
package config

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Region is a replication endpoint tag. The closed set used by this
// deployment is {india, china}, but the processor treats it as an opaque
// string so a third environment could be added without a code change.
type Region string

// Config holds every environment variable the process reads at startup.
type Config struct {
	Region   Region `short:"r" env:"REGION" long:"region" description:"local region tag (e.g. india, china)" required:"true"`
	PeerHint string `env:"PEER_REGION" long:"peer-region" description:"optional explicit peer region tag; accepted but not used by the processor"`

	DBHost     string `env:"DB_HOST" long:"db-host" description:"sink database host" default:"localhost"`
	DBPort     int    `env:"DB_PORT" long:"db-port" description:"sink database port" default:"5432"`
	DBName     string `env:"DB_NAME" long:"db-name" description:"sink database name" required:"true"`
	DBUser     string `env:"DB_USER" long:"db-user" description:"sink database user" required:"true"`
	DBPassword string `env:"DB_PASSWORD" long:"db-password" description:"sink database password"`

	KafkaBroker string `env:"KAFKA_BROKER" long:"kafka-broker" description:"message bus host:port" required:"true"`
	ClientID    string `env:"CLIENT_ID" long:"client-id" description:"consumer client identifier" default:"inbound-sync"`
	GroupID     string `env:"GROUP_ID" long:"group-id" description:"consumer group identifier (random suffix generated if empty)"`

	NodeEnv  string `env:"NODE_ENV" long:"node-env" description:"production enables TLS with verification disabled (Render PG convention)" default:"development"`
	LogLevel string `env:"LOG_LEVEL" long:"log-level" description:"debug|info|warn|error" default:"info"`
	HumanLog bool   `env:"LOG_HUMAN" long:"log-human" description:"render logs for a terminal instead of JSON"`

	StatsAddr string `env:"STATS_ADDR" long:"stats-addr" description:"listen address for the stats/metrics HTTP surface" default:":8090"`

	Version bool `short:"v" long:"version" description:"show version information"`
}

// Topics returns the three subscribed topics.
func (c *Config) Topics() []string {
	return []string{"sync.users", "sync.products", "sync.sales"}
}

// IsProduction reports whether NODE_ENV selects the production TLS
// convention.
func (c *Config) IsProduction() bool {
	return c.NodeEnv == "production"
}

// DSN renders the sink connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// Load reads a local .env file (best-effort, missing file is not an error)
// and then parses flags/environment into a Config.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	cfg := new(Config)
	parser := flags.NewParser(cfg, flags.HelpFlag|flags.PassDoubleDash)
	parser.SubcommandsOptional = true
	extra, err := parser.ParseArgs(args)
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			cfg.Version = false
			return cfg, err
		}
		return nil, err
	}
	if len(extra) > 0 {
		return nil, fmt.Errorf("unknown argument(s): %v", extra)
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "inbound-sync-" + uuid.NewString()
	}
	return cfg, nil
}
