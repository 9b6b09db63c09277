package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vitrinehq/vitrine/internal/app"
	"github.com/vitrinehq/vitrine/internal/studio"
)

var imageOut string

var imageCmd = &cobra.Command{
	Use:   "image [prompt]",
	Short: "Generate a standalone image wrapped in an HTML page",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runImage,
}

func init() {
	imageCmd.Flags().StringVarP(&imageOut, "out", "o", "image.html", "output file")
	rootCmd.AddCommand(imageCmd)
}

func runImage(_ *cobra.Command, args []string) error {
	prompt := strings.TrimSpace(strings.Join(args, " "))

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	c, err := a.Studio.GenerateImage(ctx, studio.ImageRequest{Prompt: prompt}, nil)
	if err != nil {
		return fmt.Errorf("generating image: %w", err)
	}

	if err := os.WriteFile(imageOut, []byte(c.HTML), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", imageOut, err)
	}

	fmt.Printf("Created %q (%s)\n", c.Name, c.ID)
	fmt.Printf("Wrote %s\n", imageOut)
	return nil
}
