// Package settings holds defaults of crab's global flags.
//
// Values come from, in order of precedence:
// CRAB_* environment variables, ~/.crab/crab.yaml, and built-in defaults.
// The proxy location also honours X509_USER_PROXY.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "CRAB"

// Dir is the directory of user wide crab files, relative to the home.
const Dir = ".crab"

type Settings struct {
	// default task configuration for "crab submit".
	Config string `mapstructure:"config"`

	// path to the X.509 proxy.
	Proxy string `mapstructure:"proxy"`

	// name of the server instance used for new tasks.
	Instance string `mapstructure:"instance"`

	// path to the instance store. By default, "instances" next to the settings file.
	Instances string `mapstructure:"instances"`

	Debug bool `mapstructure:"debug"`
	Quiet bool `mapstructure:"quiet"`

	// log file used until a command knows its task directory.
	LogFile string `mapstructure:"logfile"`

	// timeout of each REST call.
	Timeout time.Duration `mapstructure:"timeout"`

	// attempts of a REST call answered by 502, 503 or 504.
	Retries int `mapstructure:"retries"`
}

// DefaultProxy is where grid tools put a proxy of the current user.
func DefaultProxy() string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("x509up_u%d", os.Getuid()))
}

// DefaultPath is ~/.crab/crab.yaml, or "" if the home is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, Dir, "crab.yaml")
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault("config", "crabConfig.yaml")
	v.SetDefault("proxy", DefaultProxy())
	v.SetDefault("instance", "prod")
	v.SetDefault("instances", filepath.Join(dir, "instances"))
	v.SetDefault("debug", false)
	v.SetDefault("quiet", false)
	v.SetDefault("logfile", "crab.log")
	v.SetDefault("timeout", 5*time.Minute)
	v.SetDefault("retries", 3)
}

// Load reads settings from the file at path and the environment.
//
// A missing file is not an error. An empty path skips the file.
func Load(path string) (Settings, error) {
	v := viper.New()

	// the instance store sits next to the settings file.
	dir := filepath.Dir(path)
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, Dir)
		}
	}
	setDefaults(v, dir)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	if err := v.BindEnv("proxy", EnvPrefix+"_PROXY", "X509_USER_PROXY"); err != nil {
		return Settings{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
				return Settings{}, fmt.Errorf("error reading settings %s: %w", path, err)
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("error unmarshaling settings: %w", err)
	}
	if s.Retries < 1 {
		s.Retries = 1
	}
	return s, nil
}
