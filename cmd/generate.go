package cmd

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vitrinehq/vitrine/internal/app"
	"github.com/vitrinehq/vitrine/internal/studio"
)

var (
	generateOut    string
	generateAttach string
	generatePage   string
)

var generateCmd = &cobra.Command{
	Use:   "generate [prompt]",
	Short: "Generate an HTML artifact and write it to a file",
	Long: `Generate runs the artifact pipeline once and writes the resulting HTML
document to a file. The prompt may be accompanied by an attached image or
PDF and a reference web page.`,
	Args: cobra.ArbitraryArgs,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&generateOut, "out", "o", "artifact.html", "output file")
	generateCmd.Flags().StringVar(&generateAttach, "attach", "", "image or PDF file to include as input")
	generateCmd.Flags().StringVar(&generatePage, "page", "", "web page URL to use as reference context")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(_ *cobra.Command, args []string) error {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" && generateAttach == "" && generatePage == "" {
		return fmt.Errorf("nothing to generate: give a prompt, --attach, or --page")
	}

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

	req := studio.Request{Prompt: prompt, PageURL: generatePage}
	if generateAttach != "" {
		att, err := fileAttachment(generateAttach)
		if err != nil {
			return err
		}
		req.Attachments = []studio.Attachment{att}
	}

	c, err := a.Studio.Generate(ctx, req, nil)
	if err != nil {
		return fmt.Errorf("generating artifact: %w", err)
	}

	if err := os.WriteFile(generateOut, []byte(c.HTML), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", generateOut, err)
	}

	fmt.Printf("Created %q (%s)\n", c.Name, c.ID)
	fmt.Printf("Wrote %s (%d bytes)\n", generateOut, len(c.HTML))
	for _, d := range c.Identifications {
		fmt.Printf("  detected: %s (%.0f%%)\n", d.Label, d.Confidence*100)
	}
	return nil
}

// fileAttachment reads a local file into the data-URL form the studio
// expects from uploads.
func fileAttachment(path string) (studio.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return studio.Attachment{}, fmt.Errorf("reading attachment: %w", err)
	}
	mime := http.DetectContentType(data)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return studio.Attachment{
		Name:    filepath.Base(path),
		DataURL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data),
	}, nil
}
