package imaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"app/internal/model"

	"github.com/rs/zerolog"
)

// EncodeOptions select the output of a single encode call.
type EncodeOptions struct {
	OutputFormat model.Format `json:"output_format"`
	Quality      int          `json:"quality"`
	Width        int          `json:"width,omitempty"`
	Height       int          `json:"height,omitempty"`
}

// Encoder is the image-compute collaborator. Implementations report
// failures; they never return partial output.
type Encoder interface {
	Encode(ctx context.Context, input []byte, opts EncodeOptions) ([]byte, error)
}

// HTTPEncoder calls the encoding service over HTTP.
type HTTPEncoder struct {
	endpoint string
	client   *http.Client
	logger   zerolog.Logger
}

// NewHTTPEncoder creates an Encoder against the service at baseURL.
func NewHTTPEncoder(baseURL string, timeout time.Duration, logger zerolog.Logger) *HTTPEncoder {
	return &HTTPEncoder{
		endpoint: strings.TrimRight(baseURL, "/") + "/encode",
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("service", "HTTPEncoder").Logger(),
	}
}

type encodeRequest struct {
	Input []byte        `json:"input"` // base64 via encoding/json
	Opts  EncodeOptions `json:"options"`
}

type encodeResponse struct {
	Output []byte `json:"output"`
}

// Encode posts the input bytes and options to the encoding service and
// returns the converted bytes.
func (e *HTTPEncoder) Encode(ctx context.Context, input []byte, opts EncodeOptions) ([]byte, error) {
	reqBody, err := json.Marshal(encodeRequest{Input: input, Opts: opts})
	if err != nil {
		return nil, fmt.Errorf("marshaling encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("building encode request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling encoder service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("encoder service status %d: %s", resp.StatusCode, string(body))
	}

	var out encodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding encoder response: %w", err)
	}
	e.logger.Debug().Str("format", string(opts.OutputFormat)).
		Str("duration", time.Since(start).String()).Msg("Encode succeeded")
	return out.Output, nil
}
