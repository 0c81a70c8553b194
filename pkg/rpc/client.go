package rpc

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
)

// EthClient defines the interface for the Ethereum RPC operations the reducer needs.
// This abstraction allows for easier testing and alternative implementations.
type EthClient interface {
	ethereum.ContractCaller

	// ChainID retrieves the chain id of the endpoint.
	ChainID(ctx context.Context) (*big.Int, error)

	// Close closes the RPC client connection.
	Close()
}
