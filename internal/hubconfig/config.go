// Package hubconfig resolves the hub's operational knobs: everything the
// wire protocol itself leaves unspecified (§6: "no flags are defined by
// the core; any are delegated to surrounding tooling").
package hubconfig

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds the operational settings surrounding the hub: its name
// (the prefix of its routing keys), where it listens, where it keeps its
// settings file, and how it logs and reports itself.
type Config struct {
	HubName      string `mapstructure:"hub_name"`
	SocketDir    string `mapstructure:"socket_dir"`
	SettingsFile string `mapstructure:"settings_file"`
	LogLevel     string `mapstructure:"log_level"`
	LogFile      string `mapstructure:"log_file"`
	MetricsAddr  string `mapstructure:"metrics_addr"`
}

// Load resolves Config with precedence flag > env (SAMCORE_*) > samcore.yaml
// in cwd > built-in defaults, grounded in the corpus's viper.AutomaticEnv +
// SetEnvKeyReplacer + SetDefault convention.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	setDefaults(v)

	v.SetEnvPrefix("samcore")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("samcore")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("hub_name", "samcore")
	v.SetDefault("socket_dir", ".")
	v.SetDefault("settings_file", "SamCoreSettings.json")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "samcore.log")
	v.SetDefault("metrics_addr", ":9090")
}
