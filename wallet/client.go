// Package wallet is the HTTP adapter for the operator's wallet API. The
// engine only sees the engine.Wallet port; the wire protocol here is one
// provider's and stays out of the domain.
package wallet

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/novaplay-gaming/crash-server/engine"
	"github.com/novaplay-gaming/crash-server/money"
)

type Client struct {
	baseURL  string
	gameCode string
	secret   string
	http     *http.Client
}

func NewClient(baseURL, gameCode string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:3000"
	}
	if gameCode == "" {
		gameCode = "crash"
	}
	return &Client{
		baseURL:  baseURL,
		gameCode: gameCode,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

// WithSecret enables HMAC-SHA256 body signing via the X-Wallet-Signature
// header. Operators that verify signatures reject unsigned requests.
func (c *Client) WithSecret(secret string) *Client {
	c.secret = secret
	return c
}

type transactionRequest struct {
	PlayerID    string `json:"playerId"`
	AmountCents int64  `json:"amountCents"`
	GameCode    string `json:"gameCode"`
	Ref         string `json:"ref"`
}

type transactionResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Debit takes the stake off the player's balance. Token = the player's
// session JWT issued at launch.
func (c *Client) Debit(ctx context.Context, token, playerID string, amount money.Money, ref string) error {
	return c.post(ctx, "/api/wallet/debit", token, playerID, amount, ref)
}

// Credit pays out to the player's balance (wins and compensations).
func (c *Client) Credit(ctx context.Context, token, playerID string, amount money.Money, ref string) error {
	return c.post(ctx, "/api/wallet/credit", token, playerID, amount, ref)
}

func (c *Client) post(ctx context.Context, path, token, playerID string, amount money.Money, ref string) error {
	payload := transactionRequest{
		PlayerID:    playerID,
		AmountCents: amount.Cents(),
		GameCode:    c.gameCode,
		Ref:         ref,
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &engine.WalletError{Kind: engine.WalletUnavailable, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if c.secret != "" {
		req.Header.Set("X-Wallet-Signature", c.sign(body))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		kind := engine.WalletUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			kind = engine.WalletTimeout
		}
		return &engine.WalletError{Kind: kind, Err: err}
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	var data transactionResponse
	_ = json.Unmarshal(respBody, &data)
	if resp.StatusCode == http.StatusPaymentRequired || data.Code == "INSUFFICIENT_FUNDS" {
		return &engine.WalletError{
			Kind: engine.WalletInsufficientFunds,
			Err:  fmt.Errorf("wallet: %s", data.Error),
		}
	}
	return &engine.WalletError{
		Kind: engine.WalletUnavailable,
		Err:  fmt.Errorf("wallet: status %d: %s", resp.StatusCode, data.Error),
	}
}

func (c *Client) sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
