package imagen

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// genaiFallback generates images with a direct Gemini image-model call,
// bypassing the job endpoint entirely.
type genaiFallback struct {
	apiKey string
	model  string
}

// generate asks the image model for the prompt and returns the first image
// part as a data URL.
func (f *genaiFallback) generate(ctx context.Context, prompt string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  f.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("create client: %w", err)
	}

	res, err := client.Models.GenerateContent(ctx, f.model, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}

	if res == nil || len(res.Candidates) == 0 || res.Candidates[0] == nil || res.Candidates[0].Content == nil {
		return "", errors.New("image model returned no candidates")
	}

	for _, part := range res.Candidates[0].Content.Parts {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			mime := part.InlineData.MIMEType
			if mime == "" {
				mime = "image/png"
			}
			return dataURL(mime, part.InlineData.Data), nil
		}
	}

	return "", errors.New("image model returned no image data")
}
