package sdapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sdqueue/internal/models"
)

const errorBodyLimit = 4096

// Options configures a Client.
type Options struct {
	BaseURL         string
	GeneratePath    string
	ProgressPath    string
	SubmitTimeout   time.Duration
	ProgressTimeout time.Duration
	Logger          *zerolog.Logger
}

// Client talks to a Stable Diffusion WebUI compatible API.
type Client struct {
	baseURL         string
	generatePath    string
	progressPath    string
	submitTimeout   time.Duration
	progressTimeout time.Duration
	logger          zerolog.Logger
}

// New builds a client, filling in defaults for anything left empty.
func New(opts Options) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = "http://localhost:7860"
	}
	generatePath := opts.GeneratePath
	if generatePath == "" {
		generatePath = "/sdapi/v1/txt2img"
	}
	progressPath := opts.ProgressPath
	if progressPath == "" {
		progressPath = "/sdapi/v1/progress?skip_current_image=false"
	}
	submitTimeout := opts.SubmitTimeout
	if submitTimeout <= 0 {
		submitTimeout = 600 * time.Second
	}
	progressTimeout := opts.ProgressTimeout
	if progressTimeout <= 0 {
		progressTimeout = 30 * time.Second
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{
		baseURL:         base,
		generatePath:    "/" + strings.TrimLeft(generatePath, "/"),
		progressPath:    "/" + strings.TrimLeft(progressPath, "/"),
		submitTimeout:   submitTimeout,
		progressTimeout: progressTimeout,
		logger:          logger,
	}
}

// Response is the decoded txt2img answer.
type Response struct {
	Images []string `json:"images"`
	Info   string   `json:"info"`
}

// Image decodes the i-th base64 image.
func (r Response) Image(i int) ([]byte, error) {
	if i < 0 || i >= len(r.Images) {
		return nil, ErrNoImages
	}
	raw := r.Images[i]
	if strings.HasPrefix(raw, "data:") {
		if idx := strings.Index(raw, ","); idx >= 0 {
			raw = raw[idx+1:]
		}
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("sdapi: decode image %d: %w", i, err)
	}
	return data, nil
}

// Session is one connection scope shared by a submission and its progress polling.
type Session struct {
	client    *Client
	http      *http.Client
	transport *http.Transport
	closeOnce sync.Once
}

// NewSession opens a fresh connection scope. Callers must Close it.
func (c *Client) NewSession() *Session {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &Session{
		client:    c,
		http:      &http.Client{Transport: transport},
		transport: transport,
	}
}

// Close releases the session's pooled connections.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.transport.CloseIdleConnections()
	})
}

// Submit starts the generation request in the background and returns its handle.
func (s *Session) Submit(ctx context.Context, req models.GenerationRequest) *JobHandle {
	h := newJobHandle()
	go func() {
		resp, err := s.generate(ctx, req)
		h.resolve(resp, err)
	}()
	return h
}

func (s *Session) generate(ctx context.Context, payload models.GenerationRequest) (Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("sdapi: marshal request: %w", err)
	}
	reqCtx, cancel := context.WithTimeout(ctx, s.client.submitTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.client.baseURL+s.client.generatePath, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("sdapi: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return Response{}, &ConnectionError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		s.client.logger.Error().Int("status", resp.StatusCode).Str("body", string(data)).Msg("error generating image")
		return Response{}, &RemoteError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	s.client.logger.Info().Msg("image generation request completed")

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("sdapi: decode response: %w", err)
	}
	if len(out.Images) == 0 {
		return Response{}, ErrNoImages
	}
	return out, nil
}

type progressResponse struct {
	Progress    float64 `json:"progress"`
	ETARelative float64 `json:"eta_relative"`
}

// Progress reads the service's current progress. Transport failures come back as *ConnectionError.
func (s *Session) Progress(ctx context.Context) (models.ProgressSample, error) {
	reqCtx, cancel := context.WithTimeout(ctx, s.client.progressTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, s.client.baseURL+s.client.progressPath, nil)
	if err != nil {
		return models.ProgressSample{}, fmt.Errorf("sdapi: build progress request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return models.ProgressSample{}, &ConnectionError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return models.ProgressSample{}, &RemoteError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	var out progressResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.ProgressSample{}, fmt.Errorf("sdapi: decode progress: %w", err)
	}
	return models.ProgressSample{Fraction: out.Progress, ETASeconds: out.ETARelative}.Clamp(), nil
}
