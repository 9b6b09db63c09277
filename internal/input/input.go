// Package input decodes user-supplied context into typed attachments.
//
// The browser sends file attachments as data URLs, the CLI reads raw file
// bytes, and MCP clients send base64 payloads; all three converge on
// Attachment. Images and PDFs keep their raw bytes for multimodal prompts,
// text-like payloads and fetched web pages carry extracted text.
package input

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Attachment kinds.
const (
	// KindImage is a raster image passed to the model as a media part.
	KindImage Kind = "image"

	// KindPDF is a validated PDF document passed as application/pdf media.
	KindPDF Kind = "pdf"

	// KindText is a text-like payload folded into the prompt as text.
	KindText Kind = "text"

	// KindPage is readable text extracted from a fetched web page.
	KindPage Kind = "page"
)

// Kind classifies an attachment.
type Kind string

// Sentinel errors for attachment decoding.
var (
	// ErrEmptyInput indicates the payload decoded to zero bytes.
	ErrEmptyInput = errors.New("empty input")

	// ErrTooLarge indicates the payload exceeds the configured size cap.
	ErrTooLarge = errors.New("input too large")

	// ErrUnsupportedType indicates the payload is neither a supported image,
	// a PDF, nor valid text.
	ErrUnsupportedType = errors.New("unsupported input type")
)

// Attachment is one decoded unit of user-supplied context.
// Exactly one of Data and Text is populated, depending on Kind:
// image and pdf kinds carry Data, text and page kinds carry Text.
type Attachment struct {
	Kind Kind
	Name string // display name: filename, or page title for KindPage
	MIME string

	Data []byte
	Text string

	// Pages is the validated page count, KindPDF only.
	Pages int
}

// DataURL re-encodes the raw bytes as a data URL for persistence and
// display. Returns "" for text-carrying kinds.
func (a *Attachment) DataURL() string {
	if len(a.Data) == 0 {
		return ""
	}
	return "data:" + a.MIME + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

// Decoder turns wire payloads into Attachments, enforcing a size cap.
type Decoder struct {
	maxBytes int64
	logger   *slog.Logger
}

// NewDecoder creates a Decoder. maxBytes caps the decoded payload size.
func NewDecoder(maxBytes int64, logger *slog.Logger) *Decoder {
	return &Decoder{maxBytes: maxBytes, logger: logger}
}

// Decode parses a data URL into an Attachment. name is the caller-supplied
// display name (usually the original filename).
func (d *Decoder) Decode(name, dataURL string) (*Attachment, error) {
	declaredMIME, data, err := parseDataURL(dataURL, d.maxBytes)
	if err != nil {
		return nil, err
	}
	return d.classify(name, declaredMIME, data)
}

// DecodeBytes classifies raw bytes into an Attachment. Used by the CLI and
// MCP surfaces, where no data URL wrapping exists.
func (d *Decoder) DecodeBytes(name string, data []byte) (*Attachment, error) {
	if int64(len(data)) > d.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(data), d.maxBytes)
	}
	return d.classify(name, "", data)
}

// classify sniffs the content and builds the typed attachment.
// Sniffed type wins over the declared one; a data URL labelled image/png
// carrying a script must not reach the model as an image.
func (d *Decoder) classify(name, declaredMIME string, data []byte) (*Attachment, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	sniffed := http.DetectContentType(data)
	mediaType := strings.TrimSpace(strings.Split(sniffed, ";")[0])

	switch {
	case isSupportedImage(mediaType):
		return &Attachment{Kind: KindImage, Name: name, MIME: mediaType, Data: data}, nil

	case mediaType == "application/pdf":
		pages, err := validatePDF(data)
		if err != nil {
			return nil, err
		}
		return &Attachment{Kind: KindPDF, Name: name, MIME: mediaType, Data: data, Pages: pages}, nil

	case strings.HasPrefix(mediaType, "text/") || isTextMIME(declaredMIME):
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("%w: text payload is not valid UTF-8", ErrUnsupportedType)
		}
		return &Attachment{Kind: KindText, Name: name, MIME: "text/plain", Text: string(data)}, nil

	default:
		d.logger.Debug("rejecting attachment", "name", name, "sniffed", mediaType, "declared", declaredMIME)
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mediaType)
	}
}

// isSupportedImage reports whether the sniffed type is an image format the
// model accepts.
func isSupportedImage(mediaType string) bool {
	switch mediaType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return true
	}
	return false
}

// isTextMIME reports whether a declared MIME type is text-like even when
// sniffing says application/octet-stream (short JSON fragments sniff that
// way).
func isTextMIME(declared string) bool {
	declared = strings.TrimSpace(strings.Split(declared, ";")[0])
	switch declared {
	case "application/json", "application/xml", "application/yaml", "image/svg+xml":
		return true
	}
	return strings.HasPrefix(declared, "text/")
}

// parseDataURL splits and decodes a data URL, rejecting payloads whose
// decoded size would exceed maxBytes before allocating them.
func parseDataURL(s string, maxBytes int64) (mime string, data []byte, err error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, fmt.Errorf("%w: not a data URL", ErrUnsupportedType)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: malformed data URL", ErrUnsupportedType)
	}

	isBase64 := false
	for _, param := range strings.Split(meta, ";") {
		if strings.EqualFold(strings.TrimSpace(param), "base64") {
			isBase64 = true
		}
	}
	mime = strings.TrimSpace(strings.Split(meta, ";")[0])

	if isBase64 {
		payload = strings.TrimSpace(payload)
		// Base64 expands 3 bytes to 4 characters; bound before decoding.
		if int64(len(payload))/4*3 > maxBytes {
			return "", nil, fmt.Errorf("%w: encoded payload is %d bytes (max %d decoded)", ErrTooLarge, len(payload), maxBytes)
		}
		data, err = base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return "", nil, fmt.Errorf("%w: invalid base64 payload", ErrUnsupportedType)
		}
	} else {
		unescaped, uerr := url.PathUnescape(payload)
		if uerr != nil {
			return "", nil, fmt.Errorf("%w: invalid percent-encoding", ErrUnsupportedType)
		}
		data = []byte(unescaped)
	}

	if int64(len(data)) > maxBytes {
		return "", nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(data), maxBytes)
	}
	return mime, data, nil
}
