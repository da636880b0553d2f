// Command pregen renders a chapter plan (narration, soundtrack and voice
// lines) to a directory the game loads at startup.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"genforge-gateway/internal/app"
	"genforge-gateway/internal/config"
	"genforge-gateway/internal/content"
	"genforge-gateway/internal/pipeline"
	"genforge-gateway/pkg/logging/logging"
)

var (
	chaptersFile  string
	outputDir     string
	seed          int64
	noMusic       bool
	noVoice       bool
	workers       int
	musicDuration float64

	rootCmd = &cobra.Command{
		Use:           "pregen",
		Short:         "Pre-generate chapter narration, music and voice lines",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          execute,
	}
)

func init() {
	rootCmd.Flags().StringVarP(&chaptersFile, "chapters", "c", "", "chapter plan JSON (default: built-in three-chapter campaign)")
	rootCmd.Flags().StringVarP(&outputDir, "out", "o", "generated", "output directory")
	rootCmd.Flags().Int64Var(&seed, "seed", 0, "base seed (default: the plan's seed)")
	rootCmd.Flags().BoolVar(&noMusic, "no-music", false, "skip soundtrack generation")
	rootCmd.Flags().BoolVar(&noVoice, "no-voice", false, "skip voice lines")
	rootCmd.Flags().IntVarP(&workers, "workers", "w", 0, "parallel narrative generations (default: WORKERS)")
	rootCmd.Flags().Float64Var(&musicDuration, "music-duration", pipeline.DefaultPregenMusicDuration, "seconds of music per chapter")
}

func execute(cmd *cobra.Command, _ []string) error {
	plan := content.DefaultChapterPlan()
	if chaptersFile != "" {
		var err error
		if plan, err = content.LoadChapterPlan(chaptersFile); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("seed") {
		plan.Seed = seed
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.EnableMusic = cfg.EnableMusic && !noMusic
	cfg.EnableVoice = cfg.EnableVoice && !noVoice
	cfg.EnableVision = false
	// model side directories land under the output root too
	cfg.OutputDir = outputDir
	if !cmd.Flags().Changed("workers") {
		workers = cfg.Workers
	}

	logger, err := logging.Build(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := components.Close(); err != nil {
			logger.Warn("release failed", zap.Error(err))
		}
	}()

	logger.Info("pregen starting",
		zap.Int64("seed", plan.Seed),
		zap.Int("chapters", len(plan.Chapters)),
		zap.Bool("music", cfg.EnableMusic),
		zap.Bool("voice", cfg.EnableVoice),
		zap.String("out", outputDir),
	)

	manifest, err := components.Pregen().Run(ctx, plan, pipeline.PregenOptions{
		OutputDir:     outputDir,
		Workers:       workers,
		MusicDuration: musicDuration,
	})
	if err != nil {
		return err
	}

	for _, ch := range manifest.Chapters {
		files := 1 + len(ch.Files.Voice)
		if ch.Files.Music != "" {
			files++
		}
		fmt.Fprintf(cmd.OutOrStdout(), "chapter %d: %d files in %s\n", ch.Chapter, files, pipeline.ChapterDir(outputDir, ch.Chapter))
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "pregen:", err)
		os.Exit(1)
	}
}
