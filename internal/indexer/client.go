package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nft-gate/backend/internal/metrics"
	"go.uber.org/zap"
)

// ErrMalformedResponse marks a 200 answer whose body is not JSON.
var ErrMalformedResponse = errors.New("malformed indexer response")

// Client talks to the blockchain indexer REST API. Every HTTP call goes
// through the shared Queue, so all users of one Client share its pacing.
type Client struct {
	baseURL    string
	apiKey     string
	chain      string
	httpClient *http.Client
	queue      *Queue
	log        *zap.Logger
}

func NewClient(baseURL, apiKey, chain string, queue *Queue, log *zap.Logger) *Client {
	if chain == "" {
		chain = "monad"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		chain:   chain,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		queue: queue,
		log:   log,
	}
}

// CollectionsPage fetches one page of the account's NFT collections. The
// bool result is false when the answer held no well-formed list.
func (c *Client) CollectionsPage(ctx context.Context, address string, page int) ([]Collection, bool, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("pageIndex", strconv.Itoa(page))

	env, err := c.get(ctx, "nfts", fmt.Sprintf("/v2/%s/account/nfts", c.chain), q)
	if err != nil {
		return nil, false, err
	}
	cols, ok := env.collections()
	return cols, ok, nil
}

// RecentTransactions returns up to limit of the account's latest transactions.
func (c *Client) RecentTransactions(ctx context.Context, address string, limit int) ([]Transaction, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("limit", strconv.Itoa(limit))

	env, err := c.get(ctx, "transactions", fmt.Sprintf("/v2/%s/account/transactions", c.chain), q)
	if err != nil {
		return nil, err
	}
	txs, ok := env.transactions()
	if !ok {
		return nil, fmt.Errorf("transactions for %s: %w", address, ErrMalformedResponse)
	}
	return txs, nil
}

// TokenList fetches the account token list, which some indexer versions
// use to report NFT holdings as well.
func (c *Client) TokenList(ctx context.Context, address string) ([]Collection, error) {
	q := url.Values{}
	q.Set("address", address)

	env, err := c.get(ctx, "tokens", fmt.Sprintf("/v2/%s/account/tokens", c.chain), q)
	if err != nil {
		return nil, err
	}
	return env.looseCollections(), nil
}

// ContractNFTs asks for the account's tokens of one specific contract.
func (c *Client) ContractNFTs(ctx context.Context, address, contract string) ([]Collection, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("contract", contract)

	env, err := c.get(ctx, "contract_nfts", fmt.Sprintf("/v2/%s/account/nft", c.chain), q)
	if err != nil {
		return nil, err
	}
	return env.looseCollections(), nil
}

// OwnedNFTs uses the web3-compatible owner lookup filtered by contract.
func (c *Client) OwnedNFTs(ctx context.Context, address, contract string) ([]Collection, error) {
	q := url.Values{}
	q.Set("owner", address)
	q.Set("contractAddresses[]", contract)

	env, err := c.get(ctx, "owned_nfts", fmt.Sprintf("/v3/%s/web3/getNFTsForOwner", c.chain), q)
	if err != nil {
		return nil, err
	}
	if len(env.OwnedNFTs) > 0 {
		return env.owned(), nil
	}
	return env.looseCollections(), nil
}

func (c *Client) get(ctx context.Context, endpoint, path string, q url.Values) (*envelope, error) {
	var env *envelope
	err := c.queue.Do(ctx, func(ctx context.Context) error {
		var err error
		env, err = c.do(ctx, endpoint, path, q)
		return err
	})
	if err != nil {
		metrics.IndexerRequests.WithLabelValues(endpoint, outcome(err)).Inc()
		return nil, err
	}
	metrics.IndexerRequests.WithLabelValues(endpoint, "ok").Inc()
	return env, nil
}

func (c *Client) do(ctx context.Context, endpoint, path string, q url.Values) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("indexer unavailable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read indexer response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Body: truncate(string(body), 256)}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		c.log.Debug("undecodable indexer body", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, fmt.Errorf("%s: %w: %v", endpoint, ErrMalformedResponse, err)
	}
	return &env, nil
}

func outcome(err error) string {
	var se *StatusError
	switch {
	case errors.As(err, &se) && se.ServerSide():
		return "server_error"
	case errors.As(err, &se):
		return "client_error"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "transport_error"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
