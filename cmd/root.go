package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scan-io-git/autofix/cmd/analyze"
	"github.com/scan-io-git/autofix/cmd/run"
	"github.com/scan-io-git/autofix/cmd/scan"
	"github.com/scan-io-git/autofix/cmd/validate"
	"github.com/scan-io-git/autofix/cmd/version"
	internalcmd "github.com/scan-io-git/autofix/internal/cmd"
	"github.com/scan-io-git/autofix/pkg/shared/config"
	"github.com/scan-io-git/autofix/pkg/shared/errors"
)

var (
	globalOptions internalcmd.GlobalOptions
	AppConfig     *config.Config
	rootCmd       = &cobra.Command{
		Use:                   "autofix [command]",
		SilenceUsage:          true,
		SilenceErrors:         true,
		DisableFlagsInUseLine: true,
		Short:                 "Autofix turns security scanner findings into validated fixes.",
		Long: `Autofix normalizes scanner reports, ranks the findings by severity and drives
every admitted finding through an analyze, implement and validate loop. Accepted fixes are
committed to a single branch and proposed as one review request.`,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&globalOptions.ConfigPath, "config", "c", "", fmt.Sprintf("Path to the configuration file (default is %s, or $%s).", config.DefaultConfigFile, config.EnvConfig))
	rootCmd.PersistentFlags().StringArrayVarP(&globalOptions.Paths, "path", "p", nil, "Scanner report file or folder. Repeatable.")
	rootCmd.PersistentFlags().BoolVar(&globalOptions.AutoFix, "auto-fix", false, "Commit accepted fixes to a branch and open a review request.")
	rootCmd.PersistentFlags().StringVarP(&globalOptions.Output, "output", "o", "", "Output file, folder or s3://bucket/key. Defaults to stdout.")

	rootCmd.AddCommand(scan.ScanCmd)
	rootCmd.AddCommand(analyze.AnalyzeCmd)
	rootCmd.AddCommand(run.RunCmd)
	rootCmd.AddCommand(validate.ValidateCmd)
	rootCmd.AddCommand(version.NewVersionCmd())
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return errors.NewConfigError(err)
	})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		return errors.ExitCodeFor(err)
	}
	return errors.ExitOK
}

func initConfig(cmd *cobra.Command, _ []string) error {
	cfgFile, required := configPath(globalOptions.ConfigPath)

	var err error
	AppConfig, err = config.LoadConfig(cfgFile, required)
	if err != nil {
		return errors.NewConfigError(fmt.Errorf("initializing config file failed: %w", err))
	}
	if err := config.ValidateConfig(AppConfig); err != nil {
		return errors.NewConfigError(err)
	}

	scan.Init(AppConfig, &globalOptions)
	analyze.Init(AppConfig, &globalOptions)
	run.Init(AppConfig, &globalOptions)
	validate.Init(AppConfig, &globalOptions)
	version.Init(AppConfig)
	return nil
}

// configPath picks the configuration file. Only an explicitly named file has to exist.
func configPath(flagValue string) (string, bool) {
	if flagValue != "" {
		return flagValue, true
	}
	if env := os.Getenv(config.EnvConfig); env != "" {
		return env, true
	}
	return config.DefaultConfigFile, false
}
