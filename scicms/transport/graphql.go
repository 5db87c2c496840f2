// Package transport sends compiled operations to the remote GraphQL
// backend.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/machinebox/graphql"

	"github.com/borisblack/scicms-client-sub000/types"
)

// DefaultTimeout bounds a single request when the caller's context has no
// deadline
const DefaultTimeout = 30 * time.Second

// GraphQL executes operations against a remote endpoint
type GraphQL struct {
	client  *graphql.Client
	token   string
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a GraphQL transport
type Option func(*GraphQL)

// WithToken sets the bearer token sent with every request
func WithToken(token string) Option {
	return func(g *GraphQL) {
		g.token = token
	}
}

// WithTimeout overrides DefaultTimeout
func WithTimeout(d time.Duration) Option {
	return func(g *GraphQL) {
		g.timeout = d
	}
}

// WithLogger sets the logger used for request tracing
func WithLogger(logger *slog.Logger) Option {
	return func(g *GraphQL) {
		g.logger = logger
	}
}

// New creates a transport for endpoint. A nil httpClient uses
// http.DefaultClient.
func New(endpoint string, httpClient *http.Client, opts ...Option) *GraphQL {
	var clientOpts []graphql.ClientOption
	if httpClient != nil {
		clientOpts = append(clientOpts, graphql.WithHTTPClient(httpClient))
	}
	g := &GraphQL{
		client:  graphql.NewClient(endpoint, clientOpts...),
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.client.Log = func(s string) {
		g.logger.Debug(s, "component", "graphql")
	}
	return g
}

// payload is the value of the root field of every backend response
type payload struct {
	Data    json.RawMessage `json:"data"`
	Success *bool           `json:"success"`
	Meta    *struct {
		Pagination *types.Pagination `json:"pagination"`
	} `json:"meta"`
}

// Execute sends op and decodes the root field of the answer. Errors
// reported by the backend are returned in Response.Errors; the error
// return covers network failures, undecodable answers and cancellation.
func (g *GraphQL) Execute(ctx context.Context, op *types.Operation) (*types.Response, error) {
	if _, ok := ctx.Deadline(); !ok && g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	req := graphql.NewRequest(op.Document)
	for name, value := range op.Variables {
		req.Var(name, value)
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	var data map[string]json.RawMessage
	if err := g.client.Run(ctx, req, &data); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if msg, ok := backendMessage(err); ok {
			return &types.Response{Errors: []types.ErrorDescriptor{{Message: msg, Path: []string{op.Field}}}}, nil
		}
		return nil, fmt.Errorf("%s %s: %w", op.Kind, op.Item, err)
	}

	return Decode(op, data[op.Field])
}

// Decode converts the raw root field of a response
func Decode(op *types.Operation, raw json.RawMessage) (*types.Response, error) {
	resp := &types.Response{}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return resp, nil
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", op.Field, err)
	}
	resp.Success = p.Success
	if p.Meta != nil {
		resp.Pagination = p.Meta.Pagination
	}

	body := bytes.TrimSpace(p.Data)
	switch {
	case len(body) == 0 || bytes.Equal(body, []byte("null")):
	case body[0] == '[':
		if err := json.Unmarshal(body, &resp.Data); err != nil {
			return nil, fmt.Errorf("failed to decode %s data: %w", op.Field, err)
		}
	default:
		var row types.ItemData
		if err := json.Unmarshal(body, &row); err != nil {
			return nil, fmt.Errorf("failed to decode %s data: %w", op.Field, err)
		}
		resp.Data = []types.ItemData{row}
	}
	return resp, nil
}

// backendMessage extracts the message of an error the server reported in
// the GraphQL errors array. The client prefixes those with "graphql: ";
// transport failures carry other prefixes.
func backendMessage(err error) (string, bool) {
	const prefix = "graphql: "
	msg := err.Error()
	if !strings.HasPrefix(msg, prefix) {
		return "", false
	}
	msg = strings.TrimPrefix(msg, prefix)
	// non-2xx answers without a body are reported as "server returned a non-200 status code"
	if strings.HasPrefix(msg, "server returned") || strings.HasPrefix(msg, "decoding response") {
		return "", false
	}
	return msg, true
}
