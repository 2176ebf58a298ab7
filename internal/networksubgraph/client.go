// Package networksubgraph queries the network subgraph GraphQL endpoint for
// subgraph deployment records.
package networksubgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/graphfoundry/subgraph-directory/internal/directory"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 10 * time.Second

	// DefaultMaxTries is the number of attempts per page request,
	// including the first one
	DefaultMaxTries = 3

	// MaxResponseSize is the maximum allowed response size (100MB)
	MaxResponseSize = 100 * 1024 * 1024

	// UserAgent is the user agent string for HTTP requests
	UserAgent = "subgraph-directory/1.0"
)

// deploymentsQuery pages through subgraphDeployments in ascending entity ID
// order. $last carries the entity ID of the previous page's final record.
// Versions are restricted upstream to active, entityVersion-2 subgraphs;
// the rest of the pipeline relies on that filter.
const deploymentsQuery = `
query ($first: Int!, $last: String!) {
  subgraphDeployments(
    orderBy: id
    orderDirection: asc
    first: $first
    where: { id_gt: $last }
  ) {
    id
    ipfsHash
    versions(
      orderBy: version
      orderDirection: asc
      where: { subgraph_: { active: true, entityVersion: 2 } }
    ) {
      subgraph {
        id
        owner {
          id
          image
          defaultDisplayName
        }
        displayName
        image
      }
    }
  }
}`

// Client fetches deployment record pages over GraphQL. It implements
// directory.PageFetcher.
type Client struct {
	endpoint   string
	authToken  string
	maxTries   uint
	httpClient *http.Client
}

// ClientOption is a function that configures the client
type ClientOption func(*Client)

// WithTimeout sets the per-request HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithAuthToken sets a bearer token sent with every request
func WithAuthToken(token string) ClientOption {
	return func(c *Client) {
		c.authToken = token
	}
}

// WithMaxTries sets the number of attempts per page request
func WithMaxTries(tries uint) ClientOption {
	return func(c *Client) {
		if tries > 0 {
			c.maxTries = tries
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient creates a client for the given GraphQL endpoint
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: endpoint,
		maxTries: DefaultMaxTries,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlResponse struct {
	Data struct {
		SubgraphDeployments []directory.DeploymentRecord `json:"subgraphDeployments"`
	} `json:"data"`
	Errors []graphqlError `json:"errors"`
}

// FetchPage requests one page of deployment records. Transient transport
// failures are retried with exponential backoff up to the configured number
// of tries; GraphQL-level errors are not retried.
func (c *Client) FetchPage(ctx context.Context, cursor string, first int) ([]directory.DeploymentRecord, error) {
	body, err := json.Marshal(graphqlRequest{
		Query: deploymentsQuery,
		Variables: map[string]any{
			"first": first,
			"last":  cursor,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	return backoff.Retry(ctx, func() ([]directory.DeploymentRecord, error) {
		return c.fetchPage(ctx, body)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(c.maxTries))
}

func (c *Client) fetchPage(ctx context.Context, body []byte) ([]directory.DeploymentRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %s from %s", resp.Status, c.endpoint)
		// Client errors will not resolve themselves on retry.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	limitedReader := io.LimitReader(resp.Body, MaxResponseSize+1)
	data, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(data)) > MaxResponseSize {
		return nil, backoff.Permanent(fmt.Errorf("response size exceeds maximum allowed size of %d bytes", int64(MaxResponseSize)))
	}

	var decoded graphqlResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(decoded.Errors) > 0 {
		messages := make([]string, 0, len(decoded.Errors))
		for _, e := range decoded.Errors {
			messages = append(messages, e.Message)
		}
		return nil, backoff.Permanent(fmt.Errorf("graphql errors: %s", strings.Join(messages, "; ")))
	}

	return decoded.Data.SubgraphDeployments, nil
}
