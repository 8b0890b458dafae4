// Package postgrest applies change-log batches through the hosted backend's
// REST gateway.
package postgrest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/poleshift/internal/client/models"
	"github.com/dmitrijs2005/poleshift/internal/client/remote"
	"github.com/dmitrijs2005/poleshift/internal/client/session"
	"github.com/dmitrijs2005/poleshift/internal/dbx"
	"github.com/go-resty/resty/v2"
)

const (
	restPath     = "/rest/v1/"
	preferUpsert = "resolution=merge-duplicates,return=minimal"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

type Client struct {
	client *resty.Client
	tokens session.TokenSource
}

var _ remote.Connector = (*Client)(nil)

// New builds a connector for baseURL. apiKey is the project's anon key; the
// bearer token comes from tokens on every request.
func New(baseURL, apiKey string, tokens session.TokenSource, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		c.SetHeader("apikey", apiKey)
	}
	return &Client{client: c, tokens: tokens}
}

func (c *Client) Upsert(ctx context.Context, table string, rows []models.Row) error {
	return c.request(ctx, table, http.MethodPost, func(req *resty.Request) {
		req.SetHeader("Prefer", preferUpsert).SetBody(rows)
	})
}

func (c *Client) Update(ctx context.Context, table, id string, data models.Row) error {
	return c.request(ctx, table, http.MethodPatch, func(req *resty.Request) {
		req.SetHeader("Prefer", "return=minimal").
			SetQueryParam("id", "eq."+id).
			SetBody(data)
	})
}

func (c *Client) Delete(ctx context.Context, table string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return c.request(ctx, table, http.MethodDelete, func(req *resty.Request) {
		req.SetQueryParam("id", inFilter(ids))
	})
}

func (c *Client) request(ctx context.Context, table, method string, callback func(req *resty.Request)) error {
	if !dbx.ValidIdent(table) {
		return fmt.Errorf("invalid table %q", table)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to get access token: %w", err)
	}

	req := c.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetError(&errorBody{})
	if callback != nil {
		callback(req)
	}

	resp, err := req.Execute(method, restPath+table)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, table, err)
	}
	if resp.IsError() {
		return toAPIError(resp)
	}
	return nil
}

func toAPIError(resp *resty.Response) error {
	apiErr := &remote.APIError{Status: resp.StatusCode()}
	if body, ok := resp.Error().(*errorBody); ok && body != nil && (body.Code != "" || body.Message != "") {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
		if body.Details != "" {
			apiErr.Message += ": " + body.Details
		}
	} else {
		apiErr.Message = strings.TrimSpace(resp.String())
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(apiErr.Status)
	}
	return apiErr
}

// inFilter renders ids as a quoted PostgREST in() list.
func inFilter(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = strconv.Quote(id)
	}
	return "in.(" + strings.Join(quoted, ",") + ")"
}
