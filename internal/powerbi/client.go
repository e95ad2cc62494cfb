// Package powerbi is a minimal client for the Power BI REST API groups, datasets
// and refreshes endpoints, built on the azcore HTTP pipeline.
package powerbi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"

	"pbirefresh/internal/common/ratelimit"
	"pbirefresh/internal/common/version"
)

const (
	// DefaultEndpoint is the REST root for the signed-in user's organization.
	DefaultEndpoint = "https://api.powerbi.com/v1.0/myorg"

	// Scope is the token scope accepted by the Power BI REST API.
	Scope = "https://analysis.windows.net/powerbi/api/.default"

	moduleName = "pbirefresh/powerbi"
)

// ClientOptions configures a Client.
type ClientOptions struct {
	azcore.ClientOptions

	// Endpoint overrides DefaultEndpoint (sovereign clouds, tests).
	Endpoint string

	// Limiter paces every request, including the ones sent while polling.
	Limiter *ratelimit.Limiter

	// NotifyOption is sent as the refresh request body when set
	// (MailOnFailure, MailOnCompletion or NoNotification).
	NotifyOption string
}

// Client calls the Power BI REST API with a bearer token from cred.
type Client struct {
	endpoint     string
	notifyOption string
	pl           runtime.Pipeline
}

// NewClient builds a client whose pipeline authorizes each request with cred.
// The bearer policy caches the token and renews it before it expires.
func NewClient(cred azcore.TokenCredential, options *ClientOptions) (*Client, error) {
	if cred == nil {
		return nil, fmt.Errorf("powerbi: credential is required")
	}
	if options == nil {
		options = &ClientOptions{}
	}

	endpoint := strings.TrimRight(options.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("powerbi: invalid endpoint %q: %w", endpoint, err)
	}

	plOpts := runtime.PipelineOptions{
		PerRetry: []policy.Policy{runtime.NewBearerTokenPolicy(cred, []string{Scope}, nil)},
	}
	if options.Limiter.Enabled() {
		plOpts.PerCall = []policy.Policy{&pacerPolicy{limiter: options.Limiter}}
	}

	return &Client{
		endpoint:     endpoint,
		notifyOption: options.NotifyOption,
		pl:           runtime.NewPipeline(moduleName, version.Get(), plOpts, &options.ClientOptions),
	}, nil
}

// Endpoint returns the REST root the client talks to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// ListGroups returns the workspaces visible to the signed-in principal.
func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	var list valueList[Group]
	if err := c.getJSON(ctx, c.url("groups"), &list); err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	return list.Value, nil
}

// ListDatasets returns the datasets of a workspace.
func (c *Client) ListDatasets(ctx context.Context, groupID string) ([]Dataset, error) {
	var list valueList[Dataset]
	if err := c.getJSON(ctx, c.url("groups", groupID, "datasets"), &list); err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	return list.Value, nil
}

// TriggerRefresh requests an asynchronous refresh of a dataset.
// It returns the HTTP status and raw body; 202 means the refresh was accepted.
// Only transport failures are returned as errors.
func (c *Client) TriggerRefresh(ctx context.Context, groupID, datasetID string) (int, []byte, error) {
	req, err := runtime.NewRequest(ctx, http.MethodPost, c.url("groups", groupID, "datasets", datasetID, "refreshes"))
	if err != nil {
		return 0, nil, err
	}
	req.Raw().Header.Set("Accept", "application/json")
	if c.notifyOption != "" {
		if err := runtime.MarshalAsJSON(req, map[string]string{"notifyOption": c.notifyOption}); err != nil {
			return 0, nil, err
		}
	} else {
		req.Raw().Header.Set("Content-Type", "application/json")
	}
	return c.do(req)
}

// RefreshHistory fetches the most recent refresh entry of a dataset.
// It returns the HTTP status and raw body; decode a 200 body with ParseRefreshHistory.
func (c *Client) RefreshHistory(ctx context.Context, groupID, datasetID string) (int, []byte, error) {
	req, err := runtime.NewRequest(ctx, http.MethodGet, c.url("groups", groupID, "datasets", datasetID, "refreshes"))
	if err != nil {
		return 0, nil, err
	}
	req.Raw().URL.RawQuery = "$top=1"
	req.Raw().Header.Set("Accept", "application/json")
	return c.do(req)
}

func (c *Client) do(req *policy.Request) (int, []byte, error) {
	resp, err := c.pl.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := runtime.NewRequest(ctx, http.MethodGet, endpoint)
	if err != nil {
		return err
	}
	req.Raw().Header.Set("Accept", "application/json")

	resp, err := c.pl.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if !runtime.HasStatusCode(resp, http.StatusOK) {
		return runtime.NewResponseError(resp)
	}
	return runtime.UnmarshalAsJSON(resp, v)
}

func (c *Client) url(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return c.endpoint + "/" + strings.Join(escaped, "/")
}

// pacerPolicy waits on the limiter before each request leaves the pipeline.
type pacerPolicy struct {
	limiter *ratelimit.Limiter
}

func (p *pacerPolicy) Do(req *policy.Request) (*http.Response, error) {
	if err := p.limiter.Wait(req.Raw().Context()); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return req.Next()
}
