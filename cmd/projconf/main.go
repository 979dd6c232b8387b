// Package main provides the projconf command line tool.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dshills/projconf"
	"github.com/dshills/projconf/pipeline"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

// Global flags
var (
	configDir    string
	extensions   []string
	noMtimeTrust bool
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "projconf",
	Short: "Per-project editor configuration",
	Long: `projconf walks upward from a directory to find the project root,
then loads the project's configuration artifacts from the config
directory and prints or watches the merged result.`,
	Version: fmt.Sprintf("%s (%s)", version, commit),
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [dir]",
	Short: "Resolve a directory's project configuration once",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := projconf.Setup(buildOptions(args, nil))
		if err != nil {
			return err
		}
		defer engine.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		rctx, err := engine.Resolve(ctx)
		if err != nil {
			return err
		}
		return printResult(rctx)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Resolve and keep reloading on configuration changes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()

		engine, err := projconf.Setup(buildOptions(args, func(o *projconf.Options) {
			o.Loading.On = projconf.LoadStartup
			o.Loading.Watch.ConfigDir = true
			o.OnLoad = func(ctx *pipeline.Context) {
				log.Info().
					Str("root", ctx.Root()).
					Str("project", ctx.ProjectName()).
					Int("files", len(ctx.FilesLoaded())).
					Msg("configuration loaded")
			}
		}))
		if err != nil {
			return err
		}
		defer engine.Close()

		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		<-signals
		log.Info().Msg("shutting down")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Directory holding project artifacts (default <user config dir>/projconf)")
	rootCmd.PersistentFlags().StringSliceVar(&extensions, "ext", nil, "Artifact extensions in discovery order (default .json,.toml,.yaml,.lua,.vim)")
	rootCmd.PersistentFlags().BoolVar(&noMtimeTrust, "no-mtime-trust", false, "Re-read files and directories on every lookup")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")

	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(watchCmd)
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}

func buildOptions(args []string, mutate func(*projconf.Options)) projconf.Options {
	opts := projconf.Options{
		ConfigDir: configDir,
		Logger:    newLogger(),
		Cache:     projconf.CacheOptions{NoMtimeTrust: noMtimeTrust},
		Loading:   projconf.LoadingOptions{On: projconf.LoadManual},
		OnError: func(_ *pipeline.Context, err error, path string) {
			fmt.Fprintf(os.Stderr, "projconf: %v (%s)\n", err, path)
		},
	}
	if len(extensions) > 0 {
		opts.Extensions = extensions
	}
	if len(args) > 0 {
		opts.Loading.StartDir = args[0]
	}
	if mutate != nil {
		mutate(&opts)
	}
	return opts
}

func printResult(ctx *pipeline.Context) error {
	fmt.Printf("root:    %s\n", ctx.Root())
	fmt.Printf("project: %s\n", ctx.ProjectName())
	for _, f := range ctx.FilesLoaded() {
		fmt.Printf("loaded:  %s\n", f)
	}

	merged, err := json.MarshalIndent(ctx.Document().Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("serialize merged document: %w", err)
	}
	fmt.Println(string(merged))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
