package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/inventario-scan/internal/domain"
	"github.com/jhoicas/inventario-scan/pkg/logger"
)

const (
	maxResponseBytes = 4 << 20 // 4 MB
	snippetBytes     = 160
	headerRequestID  = "X-Request-ID"
	contentTypeJSON  = "application/json"
)

// TokenSource entrega el token Bearer del servicio remoto. La emisión y renovación son externas.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken token fijo tomado de la configuración.
type StaticToken string

// Token implementa TokenSource.
func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

// Config parámetros del cliente resiliente.
type Config struct {
	BaseURL     string
	Timeout     time.Duration // por intento, independiente del backoff
	MaxRetries  int
	BackoffBase time.Duration
}

// Response respuesta ya leída completa.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// Client cliente HTTP del servicio de inventario con reintentos para operaciones idempotentes.
type Client struct {
	cfg    Config
	http   *http.Client
	tokens TokenSource
	sleep  func(ctx context.Context, d time.Duration) error
	log    *logger.Logger
}

// Option configura el cliente.
type Option func(*Client)

// WithHTTPClient reemplaza el *http.Client (tests, transporte propio).
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithTokenSource inyecta el token Bearer.
func WithTokenSource(ts TokenSource) Option { return func(c *Client) { c.tokens = ts } }

// WithSleeper reemplaza la espera entre reintentos.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = fn }
}

// NewClient construye el cliente. Timeout 0 usa 15 s; BackoffBase 0 usa 500 ms.
func NewClient(cfg Config, log *logger.Logger, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	c := &Client{
		cfg:   cfg,
		http:  &http.Client{},
		sleep: sleepCtx,
		log:   log.Component("remote"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// transientError fallo de red o E/S que admite reintento.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Backoff espera antes del reintento n (1, 2, 3...): base, 2·base, 4·base...
func (c *Client) Backoff(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	return c.cfg.BackoffBase << (retry - 1)
}

// Send envía la petición. Las idempotentes se reintentan hasta MaxRetries veces ante fallos transitorios;
// cada intento usa una copia nueva de la petición (método, cabeceras y cuerpo vía GetBody).
// Una petición con cuerpo no copiable se envía una sola vez.
func (c *Client) Send(ctx context.Context, op string, req *http.Request, idempotent bool) (*Response, error) {
	attempts := 1
	if idempotent && (req.Body == nil || req.Body == http.NoBody || req.GetBody != nil) {
		attempts += c.cfg.MaxRetries
	}
	requestID := req.Header.Get(headerRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := c.Backoff(attempt - 1)
			c.log.Warn().Str("op", op).Int("attempt", attempt).Dur("backoff", delay).Err(lastErr).Msg("reintentando petición")
			if err := c.sleep(ctx, delay); err != nil {
				return nil, &domain.NetworkError{Op: op, Attempts: attempt - 1, Err: err}
			}
		}

		resp, err := c.do(ctx, req, requestID, attempt)
		if err == nil {
			return resp, nil
		}
		var te *transientError
		if !errors.As(err, &te) {
			var protoErr *domain.ProtocolError
			if errors.As(err, &protoErr) {
				return nil, err
			}
			return nil, &domain.NetworkError{Op: op, Attempts: attempt, Err: err}
		}
		lastErr = te.err
	}
	return nil, &domain.NetworkError{Op: op, Attempts: attempts, Err: lastErr}
}

func (c *Client) do(ctx context.Context, orig *http.Request, requestID string, attempt int) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req := orig.Clone(attemptCtx)
	if orig.GetBody != nil {
		body, err := orig.GetBody()
		if err != nil {
			return nil, fmt.Errorf("copiar cuerpo: %w", err)
		}
		req.Body = body
	}
	req.Header.Set(headerRequestID, requestID)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", contentTypeJSON)
	}
	if c.tokens != nil {
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("obtener token: %w", err)
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &transientError{err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &transientError{err: fmt.Errorf("leer respuesta: %w", err)}
	}

	c.log.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Str("request_id", requestID).
		Int("attempt", attempt).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("respuesta del servicio de inventario")

	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return nil, &transientError{err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return &Response{Status: resp.StatusCode, ContentType: resp.Header.Get("Content-Type"), Body: raw}, nil
}

// DecodeJSON verifica el content-type antes de decodificar. Un HTML de error o un JSON malformado
// devuelven *domain.ProtocolError.
func (r *Response) DecodeJSON(op string, v any) error {
	mediaType, _, err := mime.ParseMediaType(r.ContentType)
	if err != nil || !(mediaType == contentTypeJSON || strings.HasSuffix(mediaType, "+json")) {
		return &domain.ProtocolError{Op: op, Status: r.Status, ContentType: r.ContentType, Snippet: snippet(r.Body)}
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &domain.ProtocolError{Op: op, Status: r.Status, ContentType: r.ContentType, Snippet: snippet(r.Body), Err: err}
	}
	return nil
}

// GetJSON petición de lectura (idempotente, con reintentos).
func (c *Client) GetJSON(ctx context.Context, op, path string, query url.Values, out any) error {
	endpoint := c.cfg.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%s: crear request: %w", op, err)
	}
	resp, err := c.Send(ctx, op, req, true)
	if err != nil {
		return err
	}
	return resp.DecodeJSON(op, out)
}

// SendJSON petición que cambia estado (no idempotente, sin reintentos automáticos).
func (c *Client) SendJSON(ctx context.Context, op, method, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: serializar cuerpo: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: crear request: %w", op, err)
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	resp, err := c.Send(ctx, op, req, false)
	if err != nil {
		return err
	}
	return resp.DecodeJSON(op, out)
}

func snippet(b []byte) string {
	if len(b) > snippetBytes {
		b = b[:snippetBytes]
	}
	return strings.TrimSpace(string(b))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
