// Package flags names every envboot flag and binds them to the environment.
package flags

import (
	"strings"
	"time"

	"github.com/samber/lo"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	LogFormat = "log-format"
	LogLevel  = "log-level"
	LogSource = "log-source"
	DryRun    = "dry-run"
	Zone      = "zone"

	AIBaseURL = "ai-base-url"
	AIAPIKey  = "ai-api-key"
	AIModel   = "ai-model"
)

// Default polling cadence of the CLI tools.
const (
	StatusPollInterval = 5 * time.Second
	DeletePollInterval = 5 * time.Second
	LaunchPollInterval = 10 * time.Second
)

// Setup registers the persistent flags and binds them to ENVBOOT_* variables.
func Setup(flags *flag.FlagSet) {
	flags.String(LogFormat, "text", "log format (json, text)")
	flags.String(LogLevel, "INFO", "minimum log level")
	flags.Bool(LogSource, false, "add source code location to logs")
	flags.Bool(DryRun, false, "simulate without contacting any backend")
	flags.String(Zone, "", "site/region to operate in (defaults to OS_REGION_NAME)")

	flags.String(AIBaseURL, "", "OpenAI-compatible endpoint for requirement analysis")
	flags.String(AIAPIKey, "", "API key for the analysis endpoint")
	flags.String(AIModel, "", "model name for the analysis endpoint")

	viper.SetEnvPrefix("envboot")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	lo.Must0(viper.BindPFlags(flags))
}
