package store

import "github.com/ethereum/go-ethereum/common"

// dbEntity represents an entity row in the database
type dbEntity struct {
	Family    string `meddler:"family"`
	ID        string `meddler:"id"`
	Version   int64  `meddler:"version"`
	Deleted   bool   `meddler:"deleted"`
	Document  string `meddler:"document"`
	UpdatedAt uint64 `meddler:"updated_at"`
}

// dbJournalEvent represents a journaled event in the database
type dbJournalEvent struct {
	Seq           int64          `meddler:"seq,pk"`
	Family        string         `meddler:"family"`
	EntityID      string         `meddler:"entity_id"`
	BlockNumber   uint64         `meddler:"block_number"`
	LogIndex      uint           `meddler:"log_index"`
	MinorLogIndex uint           `meddler:"minor_log_index"`
	TxHash        common.Hash    `meddler:"tx_hash,hash"`
	Address       common.Address `meddler:"address,address"`
	Status        string         `meddler:"status"`
	Event         string         `meddler:"event"`
	RecordedAt    int64          `meddler:"recorded_at"`
}
