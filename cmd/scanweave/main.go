package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hardenlabs/scanweave/internal/log"
	"github.com/hardenlabs/scanweave/internal/model"
	"github.com/hardenlabs/scanweave/internal/orchestrator"
)

var (
	userConfigPath string // /default/config/path/scanweave on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag

	exitCode = orchestrator.ExitOK
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "scanweave")
}

func main() {
	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is scanweave.yaml in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	// run flags override the config file
	runCmd.Flags().Int("concurrency", 0, "scan worker pool size")
	runCmd.Flags().Int("synthesis-concurrency", 0, "concurrent summarization calls")
	runCmd.Flags().String("scanner", "", "scanner binary")
	runCmd.Flags().String("templates", "", "scanner template directory")
	runCmd.Flags().String("timeout", "", "per-target scan timeout, e.g. 10m")
	runCmd.Flags().String("output-dir", "", "directory for raw scan output")
	runCmd.Flags().String("report", "", "report path without extension")
	runCmd.Flags().String("renderer", "", "markdown renderer binary, empty disables rendering")

	// never print messages
	rootCmd.SilenceErrors = true

	// parse or create a config, setup logging
	rootCmd.PersistentPreRunE = initScanweave

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("scanweave failed", "err", err)
		os.Exit(orchestrator.ExitFatal)
	}
	os.Exit(exitCode)
}

var rootCmd = &cobra.Command{
	Use:          "scanweave",
	Short:        "Concurrent vulnerability scan orchestrator with generated reports",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run TARGET...",
	Short: "run scans the targets and produces the consolidated report",
	Args:  cobra.MinimumNArgs(1),
	RunE:  doRun,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provides the version of scanweave",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("scanweave: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config:    %s\n", configPath)
		}
		fmt.Printf("scanweave: %s\n", info.Main.Version)
		fmt.Printf("go:        %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:    %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:      %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:     %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func doRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	targets, err := model.ParseTargets(args)
	if err != nil {
		return err
	}

	applyFlags(cmd, &config)
	if config.Synthesis.APIKey == "" {
		config.Synthesis.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	attrs := slog.Group("scanweave",
		slog.String("cmd", "run"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	o, err := orchestrator.New(config)
	if err != nil {
		return err
	}

	result, err := o.Run(ctx, targets)
	if err != nil {
		return err
	}

	exitCode = result.ExitCode()
	return nil
}

func applyFlags(cmd *cobra.Command, cfg *model.Config) {
	flags := cmd.Flags()
	if flags.Changed("concurrency") {
		cfg.Scanner.Concurrency, _ = flags.GetInt("concurrency")
	}
	if flags.Changed("synthesis-concurrency") {
		cfg.Synthesis.Concurrency, _ = flags.GetInt("synthesis-concurrency")
	}
	if flags.Changed("scanner") {
		cfg.Scanner.Binary, _ = flags.GetString("scanner")
	}
	if flags.Changed("templates") {
		cfg.Scanner.Templates, _ = flags.GetString("templates")
	}
	if flags.Changed("timeout") {
		cfg.Scanner.Timeout, _ = flags.GetString("timeout")
	}
	if flags.Changed("output-dir") {
		cfg.Scanner.OutputDir, _ = flags.GetString("output-dir")
	}
	if flags.Changed("report") {
		cfg.Report.Path, _ = flags.GetString("report")
	}
	if flags.Changed("renderer") {
		cfg.Report.Renderer, _ = flags.GetString("renderer")
	}
}

func initScanweave(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("SCANWEAVECONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{userConfigPath, "."} {
			path := filepath.Join(d, "scanweave.yaml")
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	// store default configuration
	if configPath == "" {
		config = model.DefaultConfig()
		configPath = filepath.Join(userConfigPath, "scanweave.yaml")
		err := os.MkdirAll(filepath.Dir(configPath), 0755)
		if err != nil {
			return fmt.Errorf("creating directory %s: %w", filepath.Dir(configPath), err)
		}

		f, err := os.Create(configPath)
		if err != nil {
			return fmt.Errorf("creating file %s: %w", configPath, err)
		}
		defer func() {
			_ = f.Close()
		}()
		enc := yaml.NewEncoder(f)
		err = enc.Encode(config)
		if err != nil {
			return fmt.Errorf("storing configuration: %w", err)
		}
	} else {
		f, err := os.Open(configPath)
		if err != nil {
			return fmt.Errorf("opening config file: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		config, err = model.LoadConfig(f)
		if err != nil {
			for _, d := range model.CueErrDetails(err) {
				slog.Error(d)
			}
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	// --verbose has a precedence over config file
	if flagVerbose {
		config.Verbose = true
	}

	slog.SetDefault(log.New(config.Verbose))

	slog.Debug("scanweave run", "configPath", configPath)
	return nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
