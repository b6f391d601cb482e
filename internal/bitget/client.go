// Package bitget implements the signed client for the Bitget broker API.
// Every request is authenticated per affiliate and gated by a shared token
// bucket; responses are validated entry by entry into typed records.
package bitget

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"affiliateflow/config"
	"affiliateflow/internal/ratelimit"
	"affiliateflow/logger"
)

const (
	endpointCustomerList = "/api/broker/v1/agent/customerList"
	endpointTradeList    = "/api/broker/v1/agent/tradeList"
	endpointDepositList  = "/api/broker/v1/agent/depositList"
	endpointAssetList    = "/api/broker/v1/agent/assetList"
	endpointAccountInfo  = "/api/broker/v1/account/info"

	// codeOK is the application-level success code; any other code is an
	// error even on HTTP 200.
	codeOK = "00000"
)

// apiResponse is the envelope every broker endpoint returns.
type apiResponse struct {
	Code    string            `json:"code"`
	Msg     string            `json:"msg"`
	Data    []json.RawMessage `json:"data"`
	HasMore *bool             `json:"hasMore"`
}

// Client issues authenticated requests for the configured affiliates. One
// token bucket gates all requests regardless of affiliate.
type Client struct {
	baseURL    string
	affiliates map[string]config.AffiliateConfig
	httpClient *http.Client
	limiter    *ratelimit.Bucket
	log        *logger.Log
	now        func() time.Time
}

// NewClient builds a client from configuration. The credential map is fixed
// for the client's lifetime; unknown affiliate ids fail fast on request.
func NewClient(cfg *config.Config) *Client {
	pool := cfg.API.ConnectionPool
	transport := &http.Transport{
		MaxIdleConns:        pool.MaxIdleConns,
		MaxIdleConnsPerHost: pool.MaxIdleConns,
		MaxConnsPerHost:     pool.MaxConnsPerHost,
		IdleConnTimeout:     time.Duration(pool.IdleConnTimeoutSeconds) * time.Second,
	}

	affiliates := make(map[string]config.AffiliateConfig, len(cfg.Affiliates))
	for _, aff := range cfg.Affiliates {
		affiliates[aff.ID] = aff
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.API.BaseURL, "/"),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.API.TimeoutSeconds) * time.Second,
		},
		affiliates: affiliates,
		limiter:    ratelimit.NewBucket(cfg.API.RateLimit.RequestsPerSecond, cfg.API.RateLimit.BurstSize),
		log:        logger.GetLogger(),
		now:        time.Now,
	}
}

// request performs one signed call and returns the decoded envelope.
func (c *Client) request(ctx context.Context, affiliateID, method, endpoint string, params map[string]string) (*apiResponse, error) {
	cred, ok := c.affiliates[affiliateID]
	if !ok {
		return nil, &UnknownAffiliateError{AffiliateID: affiliateID}
	}

	method = strings.ToUpper(method)
	timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)

	// The signed body must be byte-identical to the transmitted body, so the
	// same marshalled form is used for both.
	var body []byte
	if method == http.MethodPost && len(params) > 0 {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, &APIError{AffiliateID: affiliateID, Endpoint: endpoint, Err: err}
		}
		body = b
	}
	signature := Sign(cred.APISecret, timestamp, method, endpoint, string(body))

	reqURL := c.baseURL + endpoint
	if method == http.MethodGet && len(params) > 0 {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		reqURL += "?" + q.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, &APIError{AffiliateID: affiliateID, Endpoint: endpoint, Err: err}
	}
	req.Header.Set("ACCESS-KEY", cred.APIKey)
	req.Header.Set("ACCESS-SIGN", signature)
	req.Header.Set("ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("ACCESS-PASSPHRASE", cred.APIPassphrase)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("locale", "en-US")

	c.limiter.Acquire()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{AffiliateID: affiliateID, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{AffiliateID: affiliateID, Endpoint: endpoint, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{AffiliateID: affiliateID, Endpoint: endpoint, StatusCode: resp.StatusCode}
		var envelope apiResponse
		if json.Unmarshal(payload, &envelope) == nil {
			apiErr.Code = envelope.Code
			apiErr.Message = envelope.Msg
		} else {
			apiErr.Message = string(payload)
		}
		return nil, apiErr
	}

	var envelope apiResponse
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, &APIError{AffiliateID: affiliateID, Endpoint: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if envelope.Code != codeOK {
		return nil, &APIError{
			AffiliateID: affiliateID,
			Endpoint:    endpoint,
			StatusCode:  resp.StatusCode,
			Code:        envelope.Code,
			Message:     envelope.Msg,
		}
	}
	return &envelope, nil
}
