// Package monitor watches chain activity for anomalies: whale
// transfers, per-address burst activity, and interaction with flagged
// contracts.
package monitor

import (
	"context"
	"time"
)

// Transaction is a single chain transaction, with the value expressed
// in native token units.
type Transaction struct {
	Hash  string  `json:"hash"`
	From  string  `json:"from"`
	To    string  `json:"to"`
	Value float64 `json:"value"`
}

// Block is an ordered batch of transactions.
type Block struct {
	Number       uint64        `json:"number"`
	Hash         string        `json:"hash"`
	Timestamp    time.Time     `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
}

// BlockSource yields blocks in increasing block-number order. Each call
// returns the blocks produced since the previous call; an empty slice
// means nothing new. Implementations must deliver each block at most
// once.
type BlockSource interface {
	NextBlocks(ctx context.Context) ([]Block, error)
}
