package esplora

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ark-network/payoutd/internal/core/ports"
	"github.com/btcsuite/btcd/wire"
	"github.com/sethgrid/pester"
)

const defaultMaxRetries = 3

var ErrNotFound = errors.New("not found")

// Client talks to an esplora REST API. Reads are retried with exponential
// backoff, broadcasts are sent once.
type Client struct {
	url    string
	reader *pester.Client
	writer *http.Client
}

type Stats struct {
	TxCount int `json:"tx_count"`
}

type Address struct {
	ChainStats   Stats `json:"chain_stats"`
	MempoolStats Stats `json:"mempool_stats"`
}

// IsUsed returns whether any tx, confirmed or not, touched the address.
func (a Address) IsUsed() bool {
	return a.ChainStats.TxCount+a.MempoolStats.TxCount > 0
}

type Status struct {
	Confirmed   bool  `json:"confirmed"`
	BlockHeight int64 `json:"block_height"`
	BlockTime   int64 `json:"block_time"`
}

type Utxo struct {
	Txid   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Value  int64  `json:"value"`
	Status Status `json:"status"`
}

type Tx struct {
	Txid   string `json:"txid"`
	Status Status `json:"status"`
}

func NewClient(esploraURL string, maxRetries int) *Client {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	reader := pester.New()
	reader.MaxRetries = maxRetries
	reader.Backoff = pester.ExponentialBackoff
	return &Client{
		url:    esploraURL,
		reader: reader,
		writer: &http.Client{},
	}
}

func (c *Client) TipHeight(ctx context.Context) (int64, error) {
	var height int64
	if err := c.get(ctx, &height, "blocks", "tip", "height"); err != nil {
		return 0, err
	}
	return height, nil
}

func (c *Client) Address(ctx context.Context, addr string) (*Address, error) {
	var res Address
	if err := c.get(ctx, &res, "address", addr); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Utxos(ctx context.Context, addr string) ([]Utxo, error) {
	res := make([]Utxo, 0)
	if err := c.get(ctx, &res, "address", addr, "utxo"); err != nil {
		return nil, err
	}
	return res, nil
}

// Tx returns ErrNotFound if the tx is unknown to the node.
func (c *Client) Tx(ctx context.Context, txid string) (*Tx, error) {
	var res Tx
	if err := c.get(ctx, &res, "tx", txid); err != nil {
		return nil, err
	}
	return &res, nil
}

// Broadcast returns an error wrapping ports.ErrBroadcastRejected if the node
// refused the tx.
func (c *Client) Broadcast(ctx context.Context, tx *wire.MsgTx) error {
	buf := bytes.NewBuffer(nil)
	if err := tx.Serialize(buf); err != nil {
		return err
	}
	txhex := hex.EncodeToString(buf.Bytes())

	endpoint, err := url.JoinPath(c.url, "tx")
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, endpoint, strings.NewReader(txhex),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.writer.Do(req)
	if err != nil {
		return err
	}
	// nolint:all
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	msg := strings.ToLower(string(content))

	// Broadcasting the same tx twice is not a failure.
	if strings.Contains(msg, "txn-already-known") ||
		strings.Contains(msg, "txn-already-in-mempool") {
		return nil
	}
	if resp.StatusCode == http.StatusBadRequest {
		return fmt.Errorf("%w: %s", ports.ErrBroadcastRejected, content)
	}
	return fmt.Errorf("failed to broadcast transaction: %s (%s)", resp.Status, content)
}

// GetFeeMap returns a map of sat/kvbyte fees for different confirmation
// targets. It implements the chainfee.WebAPIFeeSource interface.
func (c *Client) GetFeeMap() (map[uint32]uint32, error) {
	response := make(map[string]float64)
	if err := c.get(context.Background(), &response, "fee-estimates"); err != nil {
		return nil, err
	}

	if len(response) == 0 {
		response = map[string]float64{"1": 2.0}
	}

	mapResponse := make(map[uint32]uint32)
	for k, v := range response {
		key, err := strconv.Atoi(k)
		if err != nil {
			return nil, err
		}
		mapResponse[uint32(key)] = uint32(v * 1000)
	}

	return mapResponse, nil
}

func (c *Client) get(ctx context.Context, out interface{}, path ...string) error {
	endpoint, err := url.JoinPath(c.url, path...)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.reader.Do(req)
	if err != nil {
		return err
	}
	// nolint:all
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s endpoint HTTP error: %s", strings.Join(path, "/"), resp.Status)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
