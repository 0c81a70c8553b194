package listener

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	icommon "github.com/goran-ethernal/ChainReducer/internal/common"
	"github.com/goran-ethernal/ChainReducer/pkg/model"
)

// LogRecord is one raw log delivered by the upstream scanner.
type LogRecord struct {
	types.Log

	// Status is the confirmation state of the log.
	Status model.Status
	// Timestamp is the block time in unix seconds.
	Timestamp uint64
	// MinorLogIndex orders records produced from the same log.
	MinorLogIndex uint
	// Sender is the sender of the transaction that emitted the log.
	Sender common.Address
}

// Batch is an ordered group of records of one subscription.
type Batch struct {
	GroupID    string      `json:"groupId"`
	Blockchain string      `json:"blockchain"`
	Records    []LogRecord `json:"records"`
}

// Key returns the listener key the batch is dispatched to.
func (b Batch) Key() Key {
	return Key{GroupID: b.GroupID, Blockchain: b.Blockchain}
}

type logRecordJSON struct {
	Log           json.RawMessage `json:"log"`
	Status        string          `json:"status,omitempty"`
	Timestamp     icommon.Uint64  `json:"timestamp,omitempty"`
	MinorLogIndex uint            `json:"minorLogIndex,omitempty"`
	Sender        common.Address  `json:"sender"`
}

// MarshalJSON encodes the log next to the record fields.
func (r LogRecord) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(&r.Log)
	if err != nil {
		return nil, err
	}

	return json.Marshal(logRecordJSON{
		Log:           raw,
		Status:        string(r.Status),
		Timestamp:     icommon.Uint64(r.Timestamp),
		MinorLogIndex: r.MinorLogIndex,
		Sender:        r.Sender,
	})
}

// UnmarshalJSON decodes a record. The timestamp may be a JSON number or a
// decimal or hex string. A missing status is CONFIRMED, or REVERTED for a removed log.
func (r *LogRecord) UnmarshalJSON(data []byte) error {
	var raw logRecordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var log types.Log
	if err := json.Unmarshal(raw.Log, &log); err != nil {
		return fmt.Errorf("failed to decode log: %w", err)
	}

	status := model.StatusConfirmed
	switch {
	case raw.Status != "":
		parsed, err := model.ParseStatus(raw.Status)
		if err != nil {
			return err
		}
		status = parsed
	case log.Removed:
		status = model.StatusReverted
	}

	*r = LogRecord{
		Log:           log,
		Status:        status,
		Timestamp:     uint64(raw.Timestamp),
		MinorLogIndex: raw.MinorLogIndex,
		Sender:        raw.Sender,
	}

	return nil
}
