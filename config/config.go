package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration decodes TOML strings such as "15s" into a time.Duration.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type ChainConfig struct {
	Network string `toml:"network"`
}

type SyncConfig struct {
	Strategy  string   `toml:"strategy"`
	Timeout   Duration `toml:"timeout"`
	MaxRounds int      `toml:"max_rounds"`
}

type RPCConfig struct {
	Host       string `toml:"host"`
	User       string `toml:"user"`
	Pass       string `toml:"pass"`
	DisableTLS bool   `toml:"disable_tls"`
}

type P2PConfig struct {
	Peer string `toml:"peer"`
}

type CacheConfig struct {
	Backend string `toml:"backend"`
	Dir     string `toml:"dir"`
}

type DBConfig struct {
	URI      string `toml:"uri"`
	Database string `toml:"database"`
}

type LoggerOptions struct {
	Level               []string `toml:"level"`
	LogBackTraceEnabled bool     `toml:"log_backtrace_enabled"`
}

type ScanConfig struct {
	ProgressInterval Duration `toml:"progress_interval"`
	BirthdayMargin   Duration `toml:"birthday_margin"`
}

type MetricsConfig struct {
	Addr string `toml:"addr"`
}

type Config struct {
	Chain   ChainConfig   `toml:"chain"`
	Sync    SyncConfig    `toml:"sync"`
	RPC     RPCConfig     `toml:"rpc"`
	P2P     P2PConfig     `toml:"p2p"`
	Cache   CacheConfig   `toml:"cache"`
	DB      DBConfig      `toml:"db"`
	Logger  LoggerOptions `toml:"logger"`
	Scan    ScanConfig    `toml:"scan"`
	Metrics MetricsConfig `toml:"metrics"`
}

const (
	StrategyRPC = "rpc"
	StrategyP2P = "p2p"

	BackendFile    = "file"
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
	BackendMongo   = "mongo"
)

// Default returns the configuration used for every key the file leaves out.
func Default() *Config {
	return &Config{
		Chain: ChainConfig{Network: "btc"},
		Sync: SyncConfig{
			Strategy:  StrategyRPC,
			Timeout:   Duration{15 * time.Second},
			MaxRounds: 8,
		},
		RPC: RPCConfig{
			Host:       "127.0.0.1:8332",
			DisableTLS: true,
		},
		P2P:   P2PConfig{},
		Cache: CacheConfig{Backend: BackendFile, Dir: "."},
		DB: DBConfig{
			URI:      "mongodb://localhost:27017",
			Database: "walletscan",
		},
		Logger: LoggerOptions{Level: []string{"error", "warn", "info"}},
		Scan: ScanConfig{
			ProgressInterval: Duration{7 * time.Second},
			BirthdayMargin:   Duration{2 * time.Hour},
		},
	}
}

func LoadConfig(path string) (*Config, error) {

	config := Default()
	metaData, err := toml.DecodeFile(path, config)
	if err != nil {
		return nil, err
	}

	if len(metaData.Undecoded()) > 0 {
		return nil, (fmt.Errorf("undecoded fields: %v", metaData.Undecoded()))
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	switch c.Chain.Network {
	case "btc", "btct", "btcrt", "btcs":
	default:
		return fmt.Errorf("chain.network: unknown network %q", c.Chain.Network)
	}

	switch c.Sync.Strategy {
	case StrategyRPC, StrategyP2P:
	default:
		return fmt.Errorf("sync.strategy: must be %q or %q, got %q", StrategyRPC, StrategyP2P, c.Sync.Strategy)
	}
	if c.Sync.Timeout.Duration <= 0 {
		return fmt.Errorf("sync.timeout: must be positive")
	}
	if c.Sync.MaxRounds <= 0 {
		return fmt.Errorf("sync.max_rounds: must be positive")
	}

	switch c.Cache.Backend {
	case BackendFile, BackendLevelDB, BackendBolt:
		if c.Cache.Dir == "" {
			return fmt.Errorf("cache.dir: required for %s backend", c.Cache.Backend)
		}
	case BackendMongo:
		if c.DB.URI == "" || c.DB.Database == "" {
			return fmt.Errorf("db: uri and database required for mongo backend")
		}
	default:
		return fmt.Errorf("cache.backend: unknown backend %q", c.Cache.Backend)
	}

	if c.Scan.BirthdayMargin.Duration < 0 {
		return fmt.Errorf("scan.birthday_margin: must not be negative")
	}

	return nil
}
