// Package cli wires the headless labeltool commands.
package cli

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"labeltool/internal/codec"
	"labeltool/internal/config"
	"labeltool/internal/errors"
	"labeltool/internal/logging"
	"labeltool/internal/session"
)

// Context is shared by every subcommand.
type Context struct {
	Config   *config.Config
	Settings config.Settings
	Debug    bool
}

// RootCommand creates the root command and its subcommands.
func RootCommand(ctx *Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "labeltool",
		Short:         "Image annotation project tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	setupFlags(rootCmd, ctx)

	rootCmd.AddCommand(
		statsCommand(ctx),
		normalizeCommand(ctx),
		cleanCommand(ctx),
		classesCommand(ctx),
		dataYAMLCommand(ctx),
		autolabelCommand(ctx),
		trainCommand(ctx),
		previewCommand(ctx),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		s, err := ctx.Config.Settings()
		if err != nil {
			return err
		}
		ctx.Settings = s
		return initLogging(ctx)
	}
	return rootCmd
}

func setupFlags(rootCmd *cobra.Command, ctx *Context) {
	v := ctx.Config.Viper()
	rootCmd.PersistentFlags().BoolVarP(&ctx.Debug, "debug", "d", false, "Enable debug output")
	rootCmd.PersistentFlags().String("mask-mode", v.GetString("mask_mode"), "Mask export encoding: binary or semantic")
	rootCmd.PersistentFlags().String("log-file", v.GetString("log.file"), "Also write JSON logs to this file")

	// flag values win over the config file
	_ = v.BindPFlag("mask_mode", rootCmd.PersistentFlags().Lookup("mask-mode"))
	_ = v.BindPFlag("log.file", rootCmd.PersistentFlags().Lookup("log-file"))
}

func initLogging(ctx *Context) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(ctx.Settings.Log.Level))); err != nil {
		level = slog.LevelInfo
	}
	if ctx.Debug {
		level = slog.LevelDebug
	}
	return logging.Init(logging.Options{Level: level, FilePath: ctx.Settings.Log.File})
}

func (ctx *Context) openSession(dir string) (*session.Session, error) {
	mode, err := codec.ParseMaskMode(ctx.Settings.MaskMode)
	if err != nil {
		return nil, errors.New(err).Component("cli").Category(errors.CategoryConfig).Build()
	}
	s, err := session.Open(dir, session.Options{
		MaskMode:     mode,
		HistoryLimit: ctx.Settings.HistoryLimit,
		AutoSave:     ctx.Settings.AutoSave,
	})
	if err != nil {
		return nil, err
	}
	ctx.Config.AddRecentDir(s.Project.Dir())
	return s, nil
}

// loadAll materializes every project image in the store and returns how many
// failed to load.
func loadAll(s *session.Session) int {
	failed := 0
	for _, img := range s.Project.Images() {
		if err := s.EnsureLoaded(img); err != nil {
			logging.ForService("cli").Warn("failed to load labels", "image", img, "error", err)
			failed++
		}
	}
	return failed
}
