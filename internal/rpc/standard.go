package rpc

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ChainReducer/internal/common"
	"github.com/goran-ethernal/ChainReducer/internal/logger"
	"github.com/goran-ethernal/ChainReducer/internal/reducer"
	"github.com/goran-ethernal/ChainReducer/pkg/model"
)

// ERC-165 interface ids of the supported token standards.
var (
	InterfaceERC721  = [4]byte{0x80, 0xac, 0x58, 0xcd}
	InterfaceERC1155 = [4]byte{0xd9, 0xb6, 0x7a, 0x26}
)

const erc165ABI = `[{"inputs":[{"name":"interfaceId","type":"bytes4"}],"name":"supportsInterface","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"}]`

var _ reducer.StandardResolver = (*StandardResolver)(nil)

// StandardResolver detects the token standard of a contract through ERC-165
// supportsInterface calls. Detected standards are cached for the lifetime of
// the resolver.
type StandardResolver struct {
	caller ethereum.ContractCaller
	abi    abi.ABI
	log    *logger.Logger

	mu    sync.RWMutex
	cache map[ethcommon.Address]model.TokenStandard
}

// NewStandardResolver creates a StandardResolver calling contracts through caller.
func NewStandardResolver(caller ethereum.ContractCaller, log *logger.Logger) (*StandardResolver, error) {
	parsed, err := abi.JSON(strings.NewReader(erc165ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &StandardResolver{
		caller: caller,
		abi:    parsed,
		log:    log.WithComponent(common.ComponentRPC),
		cache:  make(map[ethcommon.Address]model.TokenStandard),
	}, nil
}

// Standard returns the standard implemented by contract. Contracts that do
// not implement ERC-165, or neither token interface, are StandardNone.
// Failures that may go away on a later call wrap reducer.ErrUnavailable.
func (r *StandardResolver) Standard(ctx context.Context, contract ethcommon.Address) (model.TokenStandard, error) {
	r.mu.RLock()
	standard, ok := r.cache[contract]
	r.mu.RUnlock()
	if ok {
		StandardLookupInc("cached")
		return standard, nil
	}

	candidates := []struct {
		id       [4]byte
		standard model.TokenStandard
	}{
		{InterfaceERC721, model.StandardERC721},
		{InterfaceERC1155, model.StandardERC1155},
	}

	standard = model.StandardNone
	for _, candidate := range candidates {
		supported, err := r.supports(ctx, contract, candidate.id)
		if err != nil {
			StandardLookupInc("unavailable")
			return model.StandardUnknown, err
		}
		if supported {
			standard = candidate.standard
			break
		}
	}

	r.mu.Lock()
	r.cache[contract] = standard
	r.mu.Unlock()

	StandardLookupInc(strings.ToLower(string(standard)))
	r.log.Debugf("detected standard %s for %s", standard, contract.Hex())

	return standard, nil
}

func (r *StandardResolver) supports(ctx context.Context, contract ethcommon.Address, id [4]byte) (bool, error) {
	data, err := r.abi.Pack("supportsInterface", id)
	if err != nil {
		return false, fmt.Errorf("failed to pack data: %w", err)
	}

	out, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	switch {
	case err == nil:
	case IsExecutionReverted(err):
		return false, nil
	case common.IsTransient(err):
		return false, fmt.Errorf("%w: supportsInterface on %s: %w", reducer.ErrUnavailable, contract.Hex(), err)
	default:
		return false, fmt.Errorf("failed to call supportsInterface on %s: %w", contract.Hex(), err)
	}

	// no code at the address
	if len(out) == 0 {
		return false, nil
	}

	var supported bool
	if err := r.abi.UnpackIntoInterface(&supported, "supportsInterface", out); err != nil {
		r.log.Debugf("unexpected supportsInterface result from %s: %v", contract.Hex(), err)
		return false, nil
	}

	return supported, nil
}
