package imagen

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

var imagePageTmpl = template.Must(template.New("image").Parse(`<!DOCTYPE html>
<html lang="en"><head><meta charset="UTF-8"><meta name="viewport" content="width=device-width,initial-scale=1">
<title>{{.Title}}</title>
<style>
body{margin:0;min-height:100vh;display:flex;flex-direction:column;align-items:center;justify-content:center;background:#0f1117;color:#e6e8ee;font-family:system-ui,sans-serif}
figure{margin:0;padding:1.5rem;max-width:900px;text-align:center}
img{max-width:100%;max-height:80vh;border-radius:12px;box-shadow:0 12px 40px rgba(0,0,0,.5)}
figcaption{margin-top:1rem;font-size:.9rem;color:#9aa1b2}
</style></head><body>
<figure>
<img src="{{.Src}}" alt="{{.Title}}">
<figcaption>{{.Prompt}}</figcaption>
</figure>
</body></html>`))

// WrapPage embeds a generated image in a self-contained HTML page, so an
// image result can live in the same artifact pipeline as generated pages.
func WrapPage(prompt, src string) (string, error) {
	title := strings.TrimSpace(prompt)
	if title == "" {
		title = "Generated image"
	}

	var buf bytes.Buffer
	err := imagePageTmpl.Execute(&buf, struct {
		Title  string
		Prompt string
		// Data URLs need the template.URL type or html/template rejects
		// them as unsafe.
		Src template.URL
	}{
		Title:  title,
		Prompt: strings.TrimSpace(prompt),
		Src:    template.URL(src),
	})
	if err != nil {
		return "", fmt.Errorf("render image page: %w", err)
	}
	return buf.String(), nil
}
