// Package mcp exposes the vitrine generation pipelines as Model Context
// Protocol tools, so MCP clients (IDEs, agents) can produce artifacts
// against the same studio the HTTP server uses.
//
// Tools:
//   - generate_artifact: prompt (+ optional image / page URL) → HTML artifact
//   - identify_image: image → vision labels
//   - generate_image: prompt → standalone image page
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vitrinehq/vitrine/internal/generate"
	"github.com/vitrinehq/vitrine/internal/input"
	"github.com/vitrinehq/vitrine/internal/studio"
)

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string

	Studio    *studio.Studio
	Generator *generate.Service
	Decoder   *input.Decoder

	Logger *slog.Logger
}

func (cfg Config) validate() error {
	if cfg.Name == "" {
		return errors.New("server name is required")
	}
	if cfg.Version == "" {
		return errors.New("server version is required")
	}
	if cfg.Studio == nil {
		return errors.New("studio is required")
	}
	if cfg.Generator == nil {
		return errors.New("generator is required")
	}
	if cfg.Decoder == nil {
		return errors.New("decoder is required")
	}
	return nil
}

// Server wraps the MCP SDK server around the studio.
type Server struct {
	mcpServer *mcp.Server
	studio    *studio.Studio
	generator *generate.Service
	decoder   *input.Decoder
	logger    *slog.Logger
}

// NewServer creates an MCP server with all vitrine tools registered.
func NewServer(cfg Config) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid mcp config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		studio:    cfg.Studio,
		generator: cfg.Generator,
		decoder:   cfg.Decoder,
		logger:    logger,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}
	return s, nil
}

// Run serves the MCP protocol on the transport. Blocks until the context is
// canceled or the transport closes.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

func (s *Server) registerTools() error {
	if err := s.registerGenerateArtifact(); err != nil {
		return err
	}
	if err := s.registerIdentifyImage(); err != nil {
		return err
	}
	return s.registerGenerateImage()
}

// generateArtifactInput is the input schema for generate_artifact.
type generateArtifactInput struct {
	Prompt       string `json:"prompt" jsonschema:"What to build, in plain language"`
	ImageDataURL string `json:"imageDataUrl,omitempty" jsonschema:"Optional input image or document as a data URL"`
	PageURL      string `json:"pageUrl,omitempty" jsonschema:"Optional public web page to use as reference context"`
}

func (s *Server) registerGenerateArtifact() error {
	inputSchema, err := jsonschema.For[generateArtifactInput](nil)
	if err != nil {
		return fmt.Errorf("generate_artifact schema: %w", err)
	}

	tool := &mcp.Tool{
		Name:        "generate_artifact",
		Description: "Generate an interactive HTML artifact from a prompt, optionally grounded on an attached image/document or a reference web page. Returns the full HTML document.",
		InputSchema: inputSchema,
	}

	mcp.AddTool(s.mcpServer, tool, func(ctx context.Context, req *mcp.CallToolRequest, in generateArtifactInput) (*mcp.CallToolResult, any, error) {
		studioReq := studio.Request{Prompt: in.Prompt, PageURL: in.PageURL}
		if in.ImageDataURL != "" {
			studioReq.Attachments = []studio.Attachment{{Name: "input", DataURL: in.ImageDataURL}}
		}

		c, err := s.studio.Generate(ctx, studioReq, nil)
		if err != nil {
			return toolError(err), nil, nil
		}

		s.logger.Info("artifact generated via mcp", "id", c.ID, "name", c.Name)
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: c.HTML}},
		}, nil, nil
	})
	return nil
}

// identifyImageInput is the input schema for identify_image.
type identifyImageInput struct {
	ImageDataURL string `json:"imageDataUrl" jsonschema:"The image to label, as a data URL"`
}

func (s *Server) registerIdentifyImage() error {
	inputSchema, err := jsonschema.For[identifyImageInput](nil)
	if err != nil {
		return fmt.Errorf("identify_image schema: %w", err)
	}

	tool := &mcp.Tool{
		Name:        "identify_image",
		Description: "Identify the main elements of an image. Returns a JSON list of detections with label, confidence, description, and category.",
		InputSchema: inputSchema,
	}

	mcp.AddTool(s.mcpServer, tool, func(ctx context.Context, req *mcp.CallToolRequest, in identifyImageInput) (*mcp.CallToolResult, any, error) {
		att, err := s.decoder.Decode("input", in.ImageDataURL)
		if err != nil {
			return toolError(err), nil, nil
		}
		if att.Kind != input.KindImage {
			return toolError(fmt.Errorf("%w: identify_image needs an image, got %s", input.ErrUnsupportedType, att.Kind)), nil, nil
		}

		detections, err := s.generator.Identify(ctx, att.Data, att.MIME)
		if err != nil {
			return toolError(err), nil, nil
		}

		data, err := json.MarshalIndent(detections, "", "  ")
		if err != nil {
			return nil, nil, fmt.Errorf("encoding detections: %w", err)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil, nil
	})
	return nil
}

// generateImageInput is the input schema for generate_image.
type generateImageInput struct {
	Prompt string `json:"prompt" jsonschema:"What the image should show"`
}

func (s *Server) registerGenerateImage() error {
	inputSchema, err := jsonschema.For[generateImageInput](nil)
	if err != nil {
		return fmt.Errorf("generate_image schema: %w", err)
	}

	tool := &mcp.Tool{
		Name:        "generate_image",
		Description: "Generate a standalone image from a prompt and wrap it in an HTML page. Returns the full HTML document embedding the image.",
		InputSchema: inputSchema,
	}

	mcp.AddTool(s.mcpServer, tool, func(ctx context.Context, req *mcp.CallToolRequest, in generateImageInput) (*mcp.CallToolResult, any, error) {
		c, err := s.studio.GenerateImage(ctx, studio.ImageRequest{Prompt: in.Prompt}, nil)
		if err != nil {
			return toolError(err), nil, nil
		}

		s.logger.Info("image generated via mcp", "id", c.ID, "name", c.Name)
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: c.HTML}},
		}, nil, nil
	})
	return nil
}

// toolError turns a pipeline failure into a tool-level error result. The
// gated state gets an explicit hint; protocol-level errors stay reserved
// for bugs in this server.
func toolError(err error) *mcp.CallToolResult {
	msg := err.Error()
	if errors.Is(err, studio.ErrGated) || errors.Is(err, generate.ErrKeyReset) {
		msg += " (rotate the API key, then clear the gate via the studio UI or POST /api/v1/gate/clear)"
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}
