package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// EVMConfig configures the JSON-RPC block source.
type EVMConfig struct {
	RPCURL     string `yaml:"rpc_url"`
	StartBlock string `yaml:"start_block"` // "latest", "earliest", or block number
	BatchSize  int    `yaml:"batch_size"`  // max blocks per poll
}

// EVMSource reads blocks from an EVM JSON-RPC endpoint. It tracks a
// cursor so each block is returned exactly once, catching up in batches
// when behind the chain head.
type EVMSource struct {
	config    EVMConfig
	client    *http.Client
	lastBlock uint64
	resolved  bool
}

// NewEVMSource creates a block source for the given endpoint.
func NewEVMSource(cfg EVMConfig) *EVMSource {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &EVMSource{
		config: cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// NextBlocks returns blocks produced since the last call, oldest first.
func (s *EVMSource) NextBlocks(ctx context.Context) ([]Block, error) {
	if !s.resolved {
		start, err := s.resolveStartBlock(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolving start block: %w", err)
		}
		s.lastBlock = start
		s.resolved = true
	}

	latest, err := s.getBlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting block number: %w", err)
	}
	if latest <= s.lastBlock {
		return nil, nil
	}

	endBlock := s.lastBlock + uint64(s.config.BatchSize)
	if endBlock > latest {
		endBlock = latest
	}

	blocks := make([]Block, 0, endBlock-s.lastBlock)
	for num := s.lastBlock + 1; num <= endBlock; num++ {
		block, err := s.getBlock(ctx, num)
		if err != nil {
			// Return what we have; the cursor stays before the
			// failed block so the next poll retries it.
			if len(blocks) > 0 {
				return blocks, nil
			}
			return nil, fmt.Errorf("getting block %d: %w", num, err)
		}
		blocks = append(blocks, *block)
		s.lastBlock = num
	}

	return blocks, nil
}

func (s *EVMSource) resolveStartBlock(ctx context.Context) (uint64, error) {
	switch s.config.StartBlock {
	case "", "latest":
		return s.getBlockNumber(ctx)
	case "earliest":
		return 0, nil
	default:
		n, err := strconv.ParseUint(s.config.StartBlock, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid start_block %q: %w", s.config.StartBlock, err)
		}
		return n, nil
	}
}

// --- JSON-RPC methods ---

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *EVMSource) rpcCall(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.config.RPCURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20)) // 10MB limit
	if err != nil {
		return nil, err
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("invalid JSON-RPC response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("RPC error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}

	return rpcResp.Result, nil
}

func (s *EVMSource) getBlockNumber(ctx context.Context) (uint64, error) {
	result, err := s.rpcCall(ctx, "eth_blockNumber", nil)
	if err != nil {
		return 0, err
	}
	var hexNum string
	if err := json.Unmarshal(result, &hexNum); err != nil {
		return 0, err
	}
	return parseHexUint64(hexNum)
}

type blockResult struct {
	Number       string           `json:"number"`
	Hash         string           `json:"hash"`
	Timestamp    string           `json:"timestamp"`
	Transactions []rawTransaction `json:"transactions"`
}

type rawTransaction struct {
	Hash  string `json:"hash"`
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value"`
}

func (s *EVMSource) getBlock(ctx context.Context, blockNum uint64) (*Block, error) {
	hexBlock := fmt.Sprintf("0x%x", blockNum)
	result, err := s.rpcCall(ctx, "eth_getBlockByNumber", []interface{}{hexBlock, true})
	if err != nil {
		return nil, err
	}
	if string(result) == "null" {
		return nil, fmt.Errorf("block %d not found", blockNum)
	}

	var raw blockResult
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, err
	}

	number, _ := parseHexUint64(raw.Number)
	blockTime, _ := parseHexUint64(raw.Timestamp)

	block := &Block{
		Number:       number,
		Hash:         raw.Hash,
		Timestamp:    time.Unix(int64(blockTime), 0).UTC(),
		Transactions: make([]Transaction, 0, len(raw.Transactions)),
	}

	for _, tx := range raw.Transactions {
		block.Transactions = append(block.Transactions, Transaction{
			Hash:  tx.Hash,
			From:  tx.From,
			To:    tx.To,
			Value: weiToUnits(parseHexBigInt(tx.Value)),
		})
	}

	return block, nil
}

// --- Helpers ---

func parseHexUint64(s string) (uint64, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 16, 64)
}

func parseHexBigInt(s string) *big.Int {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return big.NewInt(0)
	}
	n := new(big.Int)
	n.SetString(s, 16)
	return n
}

func weiToUnits(wei *big.Int) float64 {
	units := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e18))
	f, _ := units.Float64()
	return f
}
