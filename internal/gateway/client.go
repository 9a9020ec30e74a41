package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sealedrps/internal/retry"
	"sealedrps/internal/sealcrypto"
	"sealedrps/internal/types"
)

// Client talks to a gateway over HTTP. Transport failures and 5xx replies are
// returned as plain errors so a retry policy may try again; refusals are
// returned as retry.Permanent protocol errors.
type Client struct {
	base string
	http *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) UserDecrypt(ctx context.Context, req UserDecryptRequest) (*UserDecryptResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("marshal user-decrypt: %w", err))
	}
	var out UserDecryptResponse
	if err := c.do(ctx, http.MethodPost, RouteUserDecrypt, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// NetworkKey fetches the network public key, so a Client can serve as the
// engine's key source.
func (c *Client) NetworkKey(ctx context.Context) ([]byte, error) {
	var out PublicKeyResponse
	if err := c.do(ctx, http.MethodGet, RoutePublicKey, nil, &out); err != nil {
		return nil, err
	}
	pk, err := sealcrypto.PointFromHex(out.PublicKey)
	if err != nil {
		return nil, types.ErrGatewayResponseInvalid.Wrapf("public key: %v", err)
	}
	return pk.Bytes(), nil
}

func (c *Client) Health(ctx context.Context) error {
	var out map[string]any
	return c.do(ctx, http.MethodGet, RouteHealth, nil, &out)
}

func (c *Client) do(ctx context.Context, method, route string, body []byte, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.base+route, rdr)
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("gateway %s: %w", route, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read gateway response: %w", err)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("gateway %s: status=%d body=%s", route, resp.StatusCode, string(bodyBytes))
	}
	if resp.StatusCode != http.StatusOK {
		var e ErrorResponse
		_ = json.Unmarshal(bodyBytes, &e)
		if e.Code == CodeAuthorizationExpired {
			return retry.Permanent(types.ErrAuthorizationExpired.Wrap(e.Message))
		}
		return retry.Permanent(types.ErrGatewayRejected.Wrapf("status=%d code=%s: %s", resp.StatusCode, e.Code, e.Message))
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return retry.Permanent(types.ErrGatewayResponseInvalid.Wrapf("decode %s: %v", route, err))
	}
	return nil
}
