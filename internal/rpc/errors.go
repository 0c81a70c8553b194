package rpc

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/goran-ethernal/ChainReducer/internal/common"
)

const (
	errorTypeTransient = "transient"
	errorTypeReverted  = "reverted"
	errorTypeOther     = "other"
)

// IsExecutionReverted checks if the error is a reverted eth_call. Nodes report
// reverts either as a DataError carrying the revert payload or by message only.
func IsExecutionReverted(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "execution reverted") || strings.Contains(msg, "invalid opcode") {
		return true
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		return strings.Contains(msg, "revert")
	}

	return false
}

// errorType classifies err for the RPC error metric.
func errorType(err error) string {
	switch {
	case common.IsTransient(err):
		return errorTypeTransient
	case IsExecutionReverted(err):
		return errorTypeReverted
	default:
		return errorTypeOther
	}
}
