package vkapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/HKUDS/graffitibot-go/pkg/transport"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultEndpoint is the base URL method names are appended to.
const DefaultEndpoint = "https://api.vk.com/method"

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// Endpoint defaults to DefaultEndpoint.
	Endpoint    string
	Credentials Credentials
	Transport   transport.Transport
	// RandomID generates random_id for messages.send. Defaults to a
	// value derived from a random UUID.
	RandomID func() int64
	Logger   *zap.Logger
}

// Client turns Method values into authenticated requests and decodes the
// response envelope. It never retries; that is the caller's decision.
type Client struct {
	endpoint    string
	credentials Credentials
	transport   transport.Transport
	randomID    func() int64
	logger      *zap.Logger
}

// NewClient creates a new API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("vkapi: transport is required")
	}
	if cfg.Credentials.Token == "" {
		return nil, fmt.Errorf("vkapi: access token is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	version := cfg.Credentials.Version
	if version == (APIVersion{}) {
		version = DefaultVersion
	}
	randomID := cfg.RandomID
	if randomID == nil {
		randomID = func() int64 { return int64(uuid.New().ID()) }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		endpoint:    strings.TrimRight(endpoint, "/"),
		credentials: Credentials{Token: cfg.Credentials.Token, Version: version},
		transport:   cfg.Transport,
		randomID:    randomID,
		logger:      logger,
	}, nil
}

// MethodURL renders the request URL for m. Parameters appear in insertion
// order, followed by access_token and v.
func (c *Client) MethodURL(m Method) string {
	params := append(m.Params(),
		Param{Name: "access_token", Value: c.credentials.Token},
		Param{Name: "v", Value: c.credentials.Version.String()},
	)
	return c.endpoint + "/" + m.Name() + "?" + encodeParams(params)
}

// Call performs m and returns the raw "response" value.
func (c *Client) Call(ctx context.Context, m Method) (json.RawMessage, error) {
	body, err := c.transport.Get(ctx, c.MethodURL(m))
	if err != nil {
		return nil, fmt.Errorf("vkapi: %s: %w", m.Name(), err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &DecodeError{What: m.Name() + " response", Err: err}
	}
	if env.Error != nil {
		env.Error.Method = m.Name()
		c.logger.Warn("api error",
			zap.String("method", m.Name()),
			zap.Int("code", env.Error.Code),
			zap.String("message", env.Error.Message),
		)
		return nil, env.Error
	}
	if len(env.Response) == 0 {
		return nil, &DecodeError{What: m.Name() + " response", Err: fmt.Errorf("missing response field")}
	}
	return env.Response, nil
}

// callInto performs m and decodes the response into out.
func (c *Client) callInto(ctx context.Context, m Method, out any) error {
	raw, err := c.Call(ctx, m)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &DecodeError{What: m.Name() + " result", Err: err}
	}
	return nil
}
