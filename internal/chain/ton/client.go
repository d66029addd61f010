package ton

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// представляет тип сети TON
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
)

// конечные точки TON API
const (
	TonAPIMainnet = "https://tonapi.io/v2"
	TonAPITestnet = "https://testnet.tonapi.io/v2"
)

// клиент TON API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// создает новый клиент TON API
func NewClient(network Network, apiKey string) *Client {
	baseURL := TonAPIMainnet
	if network == NetworkTestnet {
		baseURL = TonAPITestnet
	}
	return NewClientWithURL(baseURL, apiKey)
}

// NewClientWithURL - клиент с произвольным адресом API (свой инстанс tonapi, тесты)
func NewClientWithURL(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// AccountAddress представляет адрес аккаунта в ответе API
type AccountAddress struct {
	Address  string `json:"address"`
	IsScam   bool   `json:"is_scam"`
	IsWallet bool   `json:"is_wallet"`
}

// Transaction представляет транзакцию в сети TON (tonapi.io v2 format)
type Transaction struct {
	Hash    string          `json:"hash"`
	Lt      int64           `json:"lt"`
	Account *AccountAddress `json:"account"`
	Utime   int64           `json:"utime"`
	InMsg   *Message        `json:"in_msg"`
	Success bool            `json:"success"`
	Aborted bool            `json:"aborted"`
}

// Message представляет сообщение в сети TON
type Message struct {
	MsgType       string          `json:"msg_type"`
	Bounced       bool            `json:"bounced"`
	Value         int64           `json:"value"`
	Destination   *AccountAddress `json:"destination"`
	Source        *AccountAddress `json:"source"`
	CreatedAt     int64           `json:"created_at"`
	OpCode        string          `json:"op_code"`
	Hash          string          `json:"hash"`
	DecodedOpName string          `json:"decoded_op_name"`
	DecodedBody   *DecodedBody    `json:"decoded_body"`
}

// DecodedBody представляет декодированное тело сообщения
type DecodedBody struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

// получает последние транзакции для адреса, новые первыми
func (c *Client) GetTransactions(ctx context.Context, address string, limit int, beforeLt int64) ([]Transaction, error) {
	reqURL := fmt.Sprintf("%s/blockchain/accounts/%s/transactions?limit=%d", c.baseURL, address, limit)
	if beforeLt > 0 {
		reqURL = fmt.Sprintf("%s&before_lt=%d", reqURL, beforeLt)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	c.setAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ошибка API: %s - %s", resp.Status, string(body))
	}

	var result struct {
		Transactions []Transaction `json:"transactions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return result.Transactions, nil
}

// setAuthHeader устанавливает заголовок авторизации если ключ валидный
func (c *Client) setAuthHeader(req *http.Request) {
	// валидные ключи tonapi начинаются с AF/AG или это длинные JWT
	if c.apiKey == "" {
		return
	}
	if strings.HasPrefix(c.apiKey, "AF") || strings.HasPrefix(c.apiKey, "AG") || len(c.apiKey) > 100 {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// фильтрует успешные входящие переводы на указанный адрес
func ParseIncomingTransactions(txs []Transaction, recipientAddress string) []Transaction {
	recipient := NormalizeAddress(recipientAddress)

	var incoming []Transaction
	for _, tx := range txs {
		if tx.InMsg == nil || tx.InMsg.Destination == nil || tx.InMsg.Value <= 0 {
			continue
		}
		if tx.Aborted || tx.InMsg.Bounced {
			continue
		}
		if NormalizeAddress(tx.InMsg.Destination.Address) == recipient {
			incoming = append(incoming, tx)
		}
	}
	return incoming
}

// извлекает текстовую заметку из транзакции
func ExtractMemo(tx *Transaction) string {
	if tx.InMsg != nil && tx.InMsg.DecodedBody != nil {
		return strings.TrimSpace(tx.InMsg.DecodedBody.Text)
	}
	return ""
}
