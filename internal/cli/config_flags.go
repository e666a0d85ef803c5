package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/zugdienste/internal/config"
)

// configFlags are shared by every command that resolves a configuration.
type configFlags struct {
	ConfigPath string
	EnvFile    string
}

func (f *configFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.ConfigPath, "config", "c", "", "path to YAML configuration file")
	cmd.Flags().StringVar(&f.EnvFile, "env-file", ".env", "dotenv file consulted for ZUGDIENSTE_* variables")
}

func (f *configFlags) load() (config.Config, error) {
	return config.NewLoader(f.ConfigPath).WithEnvFile(f.EnvFile).Load()
}
