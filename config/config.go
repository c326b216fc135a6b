package config

import (
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// SysConfig system configuration
type SysConfig struct {
	Appid    string `yaml:"appid"`
	Location string `yaml:"location"`
	Workdir  string `yaml:"workdir"`
	Debug    bool   `yaml:"debug"`
}

// WebConfig admin API and webhook listener
type WebConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	ShutdownTimeout int    `yaml:"shutdown_timeout"` // seconds
}

// DBConfig database configuration, type is postgres or sqlite
type DBConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Passwd   string `yaml:"passwd"`
	MaxConn  int    `yaml:"max_conn"`
	IdleConn int    `yaml:"idle_conn"`
	Debug    bool   `yaml:"debug"`
}

// LogConfig logger configuration
type LogConfig struct {
	Mode       string `yaml:"mode"`
	FileEnable bool   `yaml:"file_enable"`
	Filename   string `yaml:"filename"`
}

// EvalConfig background evaluation and notification settings
type EvalConfig struct {
	RecheckInterval string `yaml:"recheck_interval"` // Go duration, empty disables the job
	Workers         int    `yaml:"workers"`
	NotifyTopic     string `yaml:"notify_topic"`
}

// DependencyConfig a directed edge between two configured services
type DependencyConfig struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

// TopologyConfig services and dependencies ensured at startup
type TopologyConfig struct {
	Services     []string           `yaml:"services"`
	Dependencies []DependencyConfig `yaml:"dependencies"`
}

type AppConfig struct {
	System     SysConfig      `yaml:"system"`
	Web        WebConfig      `yaml:"web"`
	Database   DBConfig       `yaml:"database"`
	Logger     LogConfig      `yaml:"logger"`
	Evaluation EvalConfig     `yaml:"evaluation"`
	Topology   TopologyConfig `yaml:"topology"`
}

func (c *AppConfig) GetLogDir() string {
	return path.Join(c.System.Workdir, "logs")
}

func (c *AppConfig) GetDataDir() string {
	return path.Join(c.System.Workdir, "data")
}

// RecheckEvery returns the parsed recheck interval, zero when disabled.
func (c *AppConfig) RecheckEvery() time.Duration {
	if strings.TrimSpace(c.Evaluation.RecheckInterval) == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Evaluation.RecheckInterval)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

var DefaultAppConfig = &AppConfig{
	System: SysConfig{
		Appid:    "resilienced",
		Location: "UTC",
		Workdir:  "/var/resilienced",
		Debug:    true,
	},
	Web: WebConfig{
		Host:            "0.0.0.0",
		Port:            8000,
		ShutdownTimeout: 15,
	},
	Database: DBConfig{
		Type:     "sqlite",
		Host:     "127.0.0.1",
		Port:     5432,
		Name:     "resilienced",
		User:     "postgres",
		Passwd:   "postgres",
		MaxConn:  50,
		IdleConn: 10,
	},
	Logger: LogConfig{
		Mode:       "development",
		FileEnable: false,
		Filename:   "/var/resilienced/logs/resilienced.log",
	},
	Evaluation: EvalConfig{
		RecheckInterval: "5m",
		Workers:         8,
		NotifyTopic:     "vis-interaction",
	},
}

// Default returns a copy of the built-in configuration.
func Default() *AppConfig {
	cfg := *DefaultAppConfig
	cfg.Topology = TopologyConfig{}
	return &cfg
}

// LoadConfig reads the yaml file (when present) on top of the defaults and
// applies RESILIENCED_* environment overrides.
func LoadConfig(cfile string) (*AppConfig, error) {
	cfg := Default()
	if cfile != "" {
		data, err := os.ReadFile(cfile)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrapf(err, "parse config %s", cfile)
			}
		case os.IsNotExist(err):
		default:
			return nil, errors.Wrapf(err, "read config %s", cfile)
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *AppConfig) {
	setEnvValue("RESILIENCED_SYSTEM_WORKER_DIR", &cfg.System.Workdir)
	setEnvValue("RESILIENCED_SYSTEM_LOCATION", &cfg.System.Location)
	setEnvBoolValue("RESILIENCED_SYSTEM_DEBUG", &cfg.System.Debug)

	setEnvValue("RESILIENCED_WEB_HOST", &cfg.Web.Host)
	setEnvIntValue("RESILIENCED_WEB_PORT", &cfg.Web.Port)

	setEnvValue("RESILIENCED_DB_TYPE", &cfg.Database.Type)
	setEnvValue("RESILIENCED_DB_HOST", &cfg.Database.Host)
	setEnvIntValue("RESILIENCED_DB_PORT", &cfg.Database.Port)
	setEnvValue("RESILIENCED_DB_NAME", &cfg.Database.Name)
	setEnvValue("RESILIENCED_DB_USER", &cfg.Database.User)
	setEnvValue("RESILIENCED_DB_PWD", &cfg.Database.Passwd)
	setEnvBoolValue("RESILIENCED_DB_DEBUG", &cfg.Database.Debug)

	setEnvValue("RESILIENCED_LOGGER_MODE", &cfg.Logger.Mode)
	setEnvBoolValue("RESILIENCED_LOGGER_FILE_ENABLE", &cfg.Logger.FileEnable)

	setEnvValue("RESILIENCED_RECHECK_INTERVAL", &cfg.Evaluation.RecheckInterval)
	setEnvIntValue("RESILIENCED_RECHECK_WORKERS", &cfg.Evaluation.Workers)
	setEnvValue("RESILIENCED_NOTIFY_TOPIC", &cfg.Evaluation.NotifyTopic)
}

func setEnvValue(name string, val *string) {
	if v, ok := os.LookupEnv(name); ok && strings.TrimSpace(v) != "" {
		*val = v
	}
}

func setEnvBoolValue(name string, val *bool) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return
	}
	if b, err := cast.ToBoolE(v); err == nil {
		*val = b
	}
}

func setEnvIntValue(name string, val *int) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return
	}
	if i, err := cast.ToIntE(v); err == nil {
		*val = i
	}
}
