// Package config loads the YAML configuration of an IV scan.
//
// The file is read with cleanenv, so every field can carry a default and
// selected fields can be overridden through IVSCAN_* environment variables.
// Conversion methods turn the raw values into the types of the gpib, device,
// messenger and scan packages.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// EnvPath names the environment variable holding the configuration path when
// none is given.
const EnvPath = "IVSCAN_CONFIG"

// DefaultPath is used when neither a path nor EnvPath is set.
const DefaultPath = "ivscan.yaml"

// Bus backends.
const (
	BackendPrologixSerial = "prologix-serial"
	BackendPrologixTCP    = "prologix-tcp"
	BackendSim            = "sim"
)

type Config struct {
	Env       string           `yaml:"env" env:"IVSCAN_ENV" env-default:"prod"`
	Log       LogConfig        `yaml:"log"`
	Bus       BusConfig        `yaml:"bus"`
	Messenger MessengerConfig  `yaml:"messenger"`
	Sensor    InstrumentConfig `yaml:"sensor"`
	Source    InstrumentConfig `yaml:"source"`
	Plan      PlanConfig       `yaml:"plan"`
	Output    OutputConfig     `yaml:"output"`
	Monitor   MonitorConfig    `yaml:"monitor"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"IVSCAN_LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"IVSCAN_LOG_FORMAT" env-default:"json"`
}

type BusConfig struct {
	Backend     string        `yaml:"backend" env:"IVSCAN_BUS_BACKEND" env-default:"prologix-serial"`
	Port        string        `yaml:"port" env:"IVSCAN_BUS_PORT" env-default:"/dev/ttyUSB0"`
	Baud        int           `yaml:"baud" env-default:"115200"`
	Host        string        `yaml:"host" env:"IVSCAN_BUS_HOST"`
	TCPPort     int           `yaml:"tcp_port" env-default:"1234"`
	ReadTimeout time.Duration `yaml:"read_timeout" env-default:"3s"`
}

type MessengerConfig struct {
	AckDelay   time.Duration `yaml:"ack_delay" env-default:"200ms"`
	Terminator string        `yaml:"terminator" env-default:"\n"`
	ReadBuffer int           `yaml:"read_buffer" env-default:"1024"`
	Grammar    string        `yaml:"grammar" env-default:"v1"`
}

type AddressConfig struct {
	Primary   int `yaml:"primary"`
	Secondary int `yaml:"secondary"`
}

type IdentityConfig struct {
	Manufacturer string `yaml:"manufacturer" env-required:"true"`
	Model        string `yaml:"model" env-required:"true"`
}

type InstrumentConfig struct {
	Address           AddressConfig  `yaml:"address"`
	Identity          IdentityConfig `yaml:"identity"`
	ConfigCommands    []string       `yaml:"config_commands"`
	OperationCommands []string       `yaml:"operation_commands"`
	ClosingCommands   []string       `yaml:"closing_commands"`
}

type RangeConfig struct {
	Start float64 `yaml:"start"`
	Stop  float64 `yaml:"stop"`
	Step  float64 `yaml:"step"`
}

type PlanConfig struct {
	Voltages       []float64     `yaml:"voltages"`
	Range          RangeConfig   `yaml:"range"`
	TestVoltage    float64       `yaml:"test_voltage"`
	Settle         time.Duration `yaml:"settle" env-default:"50s"`
	TestDuration   time.Duration `yaml:"test_duration" env-default:"10m"`
	Repetitions    int           `yaml:"repetitions" env-default:"10"`
	RampDown       bool          `yaml:"ramp_down"`
	BothPolarities bool          `yaml:"both_polarities"`
}

type SQLiteConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" env:"IVSCAN_SQLITE_PATH" env-default:"ivscan.db"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr" env:"IVSCAN_REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"IVSCAN_REDIS_PASSWORD"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel" env-default:"ivscan"`
	ListLen  int64  `yaml:"list_len" env-default:"1000"`
}

type OutputConfig struct {
	SQLite SQLiteConfig `yaml:"sqlite"`
	Redis  RedisConfig  `yaml:"redis"`
}

type MonitorConfig struct {
	Enabled bool   `yaml:"enabled" env:"IVSCAN_MONITOR_ENABLED"`
	Address string `yaml:"address" env:"IVSCAN_MONITOR_ADDRESS" env-default:":9090"`
}

// ResolvePath returns path, or the value of EnvPath, or DefaultPath.
func ResolvePath(path string) string {
	if path != "" {
		return path
	}
	if p := os.Getenv(EnvPath); p != "" {
		return p
	}

	return DefaultPath
}

// Load reads and validates the configuration file at path, resolved with
// ResolvePath.
func Load(path string) (*Config, error) {
	path = ResolvePath(path)

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &cfg, nil
}

// MustLoad is like Load but panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Validate checks every section and returns all problems found.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Bus.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Messenger.ResponseGrammar(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Messenger.TerminatorByte(); err != nil {
		errs = append(errs, err)
	}

	for name, inst := range map[string]InstrumentConfig{"sensor": c.Sensor, "source": c.Source} {
		if _, err := inst.Address.Address(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		if err := inst.Identity.Identity().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if c.Sensor.Address == c.Source.Address {
		errs = append(errs, fmt.Errorf("sensor and source share address %d", c.Sensor.Address.Primary))
	}

	if _, err := c.Plan.RampPlan(); err != nil {
		errs = append(errs, err)
	}

	if c.Output.SQLite.Enabled && c.Output.SQLite.Path == "" {
		errs = append(errs, errors.New("output.sqlite.path is empty"))
	}
	if c.Output.Redis.Enabled && c.Output.Redis.Addr == "" {
		errs = append(errs, errors.New("output.redis.addr is empty"))
	}

	return errors.Join(errs...)
}
