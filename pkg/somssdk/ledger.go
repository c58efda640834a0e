package somssdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Wallet mirrors internal/ledger.Wallet.
type Wallet struct {
	UserID    int64     `json:"UserID"`
	Balance   int64     `json:"Balance"`
	CreatedAt time.Time `json:"CreatedAt"`
}

// LedgerEntry mirrors internal/ledger.LedgerEntry.
type LedgerEntry struct {
	ID                   int64     `json:"ID"`
	TransactionID        string    `json:"TransactionID"`
	WalletID             int64     `json:"WalletID"`
	Amount               int64     `json:"Amount"`
	BalanceAfter         int64     `json:"BalanceAfter"`
	EntryType            string    `json:"EntryType"`
	TransactionType      string    `json:"TransactionType"`
	Description          string    `json:"Description"`
	ReferenceID          *string   `json:"ReferenceID"`
	CounterpartyWalletID *int64    `json:"CounterpartyWalletID"`
	CreatedAt            time.Time `json:"CreatedAt"`
}

// LedgerClient talks to the ledger service's HTTP API.
type LedgerClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewLedgerClient creates a client for the ledger service at baseURL.
func NewLedgerClient(baseURL, apiKey string, opts ...ClientOption) *LedgerClient {
	return &LedgerClient{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, http: newHTTPClient(opts...)}
}

// GetWallet fetches (or lazily creates) a user's wallet.
func (c *LedgerClient) GetWallet(ctx context.Context, userID int64) (*Wallet, error) {
	var w Wallet
	if err := doRequest(ctx, c.http, c.apiKey, http.MethodGet, fmt.Sprintf("%s/wallets/%d", c.baseURL, userID), nil, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// WalletHistory returns a wallet's ledger entries, newest first.
func (c *LedgerClient) WalletHistory(ctx context.Context, userID int64, limit, offset int) ([]*LedgerEntry, error) {
	u := fmt.Sprintf("%s/wallets/%d/history?limit=%d&offset=%d", c.baseURL, userID, limit, offset)
	var entries []*LedgerEntry
	if err := doRequest(ctx, c.http, c.apiKey, http.MethodGet, u, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// TaskReward pays bounty from the system wallet to userID, idempotent
// on taskID. Returns the transaction id.
func (c *LedgerClient) TaskReward(ctx context.Context, userID int64, taskID string, amountGold int64) (string, error) {
	body := map[string]interface{}{"user_id": userID, "task_id": taskID, "amount": amountGold}
	var resp struct {
		TransactionID string `json:"transaction_id"`
	}
	if err := doRequest(ctx, c.http, c.apiKey, http.MethodPost, c.baseURL+"/transactions/task-reward", body, &resp); err != nil {
		return "", err
	}
	return resp.TransactionID, nil
}

// P2PTransfer moves amount between two wallets and burns a fee from the sender.
func (c *LedgerClient) P2PTransfer(ctx context.Context, from, to, amount int64) (transferTxID, feeTxID string, fee int64, err error) {
	body := map[string]interface{}{"from": from, "to": to, "amount": amount}
	var resp struct {
		TransferTransactionID string `json:"transfer_transaction_id"`
		FeeTransactionID      string `json:"fee_transaction_id"`
		Fee                   int64  `json:"fee"`
	}
	if err := doRequest(ctx, c.http, c.apiKey, http.MethodPost, c.baseURL+"/transactions/p2p-transfer", body, &resp); err != nil {
		return "", "", 0, err
	}
	return resp.TransferTransactionID, resp.FeeTransactionID, resp.Fee, nil
}

// TransferFee returns the fee a transfer of amount would incur.
func (c *LedgerClient) TransferFee(ctx context.Context, amount int64) (int64, error) {
	var resp struct {
		Fee int64 `json:"fee"`
	}
	u := fmt.Sprintf("%s/transactions/transfer-fee?amount=%d", c.baseURL, amount)
	if err := doRequest(ctx, c.http, c.apiKey, http.MethodGet, u, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Fee, nil
}

// GetTransaction returns every ledger entry sharing a transaction id.
func (c *LedgerClient) GetTransaction(ctx context.Context, txID string) ([]*LedgerEntry, error) {
	var entries []*LedgerEntry
	if err := doRequest(ctx, c.http, c.apiKey, http.MethodGet, c.baseURL+"/transactions/"+url.PathEscape(txID), nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// SupplyStats mirrors internal/ledger.SupplyStats.
type SupplyStats struct {
	TotalIssued int64 `json:"TotalIssued"`
	TotalBurned int64 `json:"TotalBurned"`
	Circulating int64 `json:"Circulating"`
}

// Supply returns token-supply statistics.
func (c *LedgerClient) Supply(ctx context.Context) (*SupplyStats, error) {
	var s SupplyStats
	if err := doRequest(ctx, c.http, c.apiKey, http.MethodGet, c.baseURL+"/supply", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// GrantDeviceXP increments xp for every active device in zone.
func (c *LedgerClient) GrantDeviceXP(ctx context.Context, zone string, xp int64) error {
	body := map[string]interface{}{"zone": zone, "xp": xp}
	return doRequest(ctx, c.http, c.apiKey, http.MethodPost, c.baseURL+"/devices/xp-grant", body, nil)
}

// ZoneMultiplier returns a zone's current device-XP reward multiplier.
func (c *LedgerClient) ZoneMultiplier(ctx context.Context, zone string) (float64, error) {
	var resp struct {
		Multiplier float64 `json:"multiplier"`
	}
	if err := doRequest(ctx, c.http, c.apiKey, http.MethodGet, c.baseURL+"/devices/zone-multiplier/"+url.PathEscape(zone), nil, &resp); err != nil {
		return 1.0, err
	}
	return resp.Multiplier, nil
}

// Heartbeat records a device heartbeat, returning a reward transaction
// id if the heartbeat cleared the device type's minimum uptime.
func (c *LedgerClient) Heartbeat(ctx context.Context, deviceID string) (string, error) {
	var resp struct {
		RewardTransactionID string `json:"reward_transaction_id"`
	}
	if err := doRequest(ctx, c.http, c.apiKey, http.MethodPost, c.baseURL+"/devices/"+url.PathEscape(deviceID)+"/heartbeat", nil, &resp); err != nil {
		return "", err
	}
	return resp.RewardTransactionID, nil
}
