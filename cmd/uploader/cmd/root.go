package cmd

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/molpadia/molpareplay/internal/upload"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:           "molpa-upload",
	Short:         "upload videos to molpastream in parts",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	viper.SetEnvPrefix("MOLPA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	flags := rootCmd.PersistentFlags()
	flags.String("server", "http://localhost:4443", "base URL of the molpastream API")
	flags.String("token", "", "bearer token of the molpastream API")
	flags.String("token-env", "", "environment variable holding the bearer token, used when no token is given")
	flags.Duration("timeout", 30*time.Second, "timeout of API requests")
	flags.BoolP("verbose", "v", false, "log every failure")

	if err := viper.BindPFlags(flags); err != nil {
		panic(err)
	}
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newCredentials() upload.CredentialProvider {
	var chain upload.ChainProvider
	if tok := viper.GetString("token"); tok != "" {
		chain = append(chain, upload.StaticToken(tok))
	}
	if name := viper.GetString("token-env"); name != "" {
		chain = append(chain, upload.EnvToken(name))
	}
	if len(chain) == 0 {
		return nil
	}
	return chain
}

func newBackend() *upload.HTTPBackend {
	client := &http.Client{Timeout: viper.GetDuration("timeout")}
	return upload.NewHTTPBackend(viper.GetString("server"), client, newCredentials())
}

func byteSize(key string) (int64, error) {
	n, err := units.RAMInBytes(viper.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	return n, nil
}
