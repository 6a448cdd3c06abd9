// Package feed polls the banking feed's HTTP API for account balances.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"slotledger/internal/core"
)

// Balance is one balance report from the bank.
type Balance struct {
	AccountID core.AccountID
	Balance   core.Money
	AsOf      time.Time
}

type balanceBody struct {
	Balance *int64    `json:"balance"`
	AsOf    time.Time `json:"asOf"`
}

type Client struct {
	baseURL *url.URL
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse feed url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("feed url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchBalance asks the bank for the current balance of an account. An
// account the bank does not know yields core.ErrAccountNotFound.
func (c *Client) FetchBalance(ctx context.Context, accountID core.AccountID) (Balance, error) {
	endpoint := c.baseURL.JoinPath("accounts", strconv.FormatInt(int64(accountID), 10), "balance")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return Balance{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Balance{}, fmt.Errorf("fetch balance for account %d: %w", accountID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Balance{}, fmt.Errorf("feed account %d: %w", accountID, core.ErrAccountNotFound)
	case resp.StatusCode != http.StatusOK:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return Balance{}, fmt.Errorf("fetch balance for account %d: unexpected status %d: %s",
			accountID, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var body balanceBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return Balance{}, fmt.Errorf("decode balance for account %d: %w", accountID, err)
	}
	if body.Balance == nil {
		return Balance{}, fmt.Errorf("balance for account %d: missing balance field", accountID)
	}
	return Balance{
		AccountID: accountID,
		Balance:   core.Money(*body.Balance),
		AsOf:      body.AsOf,
	}, nil
}
