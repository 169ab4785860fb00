// Package config initializes the CLI configuration. It points Viper at the
// usual search paths, installs defaults and environment lookups, and reads
// the config file when one exists.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"

	internalconfig "github.com/JakeFAU/logohunter/internal/config"
)

// SearchPaths are tried in order when no explicit file is given.
var SearchPaths = []string{".", "$HOME/.logohunter", "/etc/logohunter"}

// InitConfig prepares v. An explicit cfgFile must exist; otherwise a missing
// config file is not an error and defaults plus environment apply. It returns
// the path of the file that was read, or "".
func InitConfig(v *viper.Viper, cfgFile string) (string, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		for _, p := range SearchPaths {
			v.AddConfigPath(p)
		}
	}

	internalconfig.Bind(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("read config: %w", err)
	}
	return v.ConfigFileUsed(), nil
}
