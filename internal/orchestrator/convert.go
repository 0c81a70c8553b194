package orchestrator

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/goran-ethernal/ChainReducer/pkg/listener"
	"github.com/goran-ethernal/ChainReducer/pkg/model"
	"github.com/holiman/uint256"
)

var (
	// ERC721: Transfer(address indexed from, address indexed to, uint256 indexed tokenId) - 4 topics
	// ERC20 shares the signature with 3 topics and is not handled
	TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

	// ERC1155 TransferSingle(address indexed operator, address indexed from, address indexed to, uint256 id, uint256 value)
	TransferSingleTopic = crypto.Keccak256Hash([]byte("TransferSingle(address,address,address,uint256,uint256)"))

	// ERC1155 TransferBatch(address indexed operator, address indexed from, address indexed to, uint256[] ids, uint256[] values)
	TransferBatchTopic = crypto.Keccak256Hash([]byte("TransferBatch(address,address,address,uint256[],uint256[])"))

	// MintLazy(uint256 tokenId, uint256 value, address[] creators)
	MintLazyTopic = crypto.Keccak256Hash([]byte("MintLazy(uint256,uint256,address[])"))

	// BurnLazy(uint256 tokenId, uint256 value)
	BurnLazyTopic = crypto.Keccak256Hash([]byte("BurnLazy(uint256,uint256)"))

	// Creators(uint256 tokenId, address[] creators)
	CreatorsTopic = crypto.Keccak256Hash([]byte("Creators(uint256,address[])"))

	// CreateCollection(address owner, string name, string symbol)
	CreateCollectionTopic = crypto.Keccak256Hash([]byte("CreateCollection(address,string,string)"))

	// OwnershipTransferred(address indexed previousOwner, address indexed newOwner)
	OwnershipTransferredTopic = crypto.Keccak256Hash([]byte("OwnershipTransferred(address,address)"))
)

const eventsABI = `[
	{"anonymous":false,"name":"TransferBatch","type":"event","inputs":[
		{"indexed":true,"name":"operator","type":"address"},
		{"indexed":true,"name":"from","type":"address"},
		{"indexed":true,"name":"to","type":"address"},
		{"indexed":false,"name":"ids","type":"uint256[]"},
		{"indexed":false,"name":"values","type":"uint256[]"}]},
	{"anonymous":false,"name":"MintLazy","type":"event","inputs":[
		{"indexed":false,"name":"tokenId","type":"uint256"},
		{"indexed":false,"name":"value","type":"uint256"},
		{"indexed":false,"name":"creators","type":"address[]"}]},
	{"anonymous":false,"name":"Creators","type":"event","inputs":[
		{"indexed":false,"name":"tokenId","type":"uint256"},
		{"indexed":false,"name":"creators","type":"address[]"}]},
	{"anonymous":false,"name":"CreateCollection","type":"event","inputs":[
		{"indexed":false,"name":"owner","type":"address"},
		{"indexed":false,"name":"name","type":"string"},
		{"indexed":false,"name":"symbol","type":"string"}]}
]`

// ErrIrrelevant is returned for records no converter is interested in.
var ErrIrrelevant = errors.New("irrelevant log")

var parsedEvents = mustParseABI(eventsABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("failed to parse events ABI: %v", err))
	}
	return parsed
}

// decoded is a log decoded into its on-chain meaning, before it is split
// into the events of each entity family.
type decoded interface {
	events(family model.Family, base model.Event, rec listener.LogRecord) []model.Event
}

// Convert turns a raw record into the events it produces for family, in
// emission order. Records that are malformed return an error; records that
// carry nothing for family return no events.
func Convert(family model.Family, rec listener.LogRecord) ([]model.Event, error) {
	items, err := decodeLog(rec.Log)
	if err != nil {
		return nil, err
	}

	base := model.Event{
		Key: model.Key{
			BlockNumber:   rec.BlockNumber,
			LogIndex:      rec.Index,
			MinorLogIndex: rec.MinorLogIndex,
		},
		TxHash:    rec.TxHash,
		Address:   rec.Address,
		Timestamp: rec.Timestamp,
		Status:    rec.Status,
	}

	batched := rec.Topics[0] == TransferBatchTopic

	var events []model.Event
	for i, item := range items {
		b := base
		if batched {
			// position of the (id, value) pair
			b.MinorLogIndex = uint(i)
		}
		events = append(events, item.events(family, b, rec)...)
	}

	return events, nil
}

func decodeLog(log types.Log) ([]decoded, error) {
	if len(log.Topics) == 0 {
		return nil, ErrIrrelevant
	}

	switch log.Topics[0] {
	case TransferTopic:
		return decodeERC721Transfer(log)
	case TransferSingleTopic:
		return decodeTransferSingle(log)
	case TransferBatchTopic:
		return decodeTransferBatch(log)
	case MintLazyTopic:
		return decodeMintLazy(log)
	case BurnLazyTopic:
		return decodeBurnLazy(log)
	case CreatorsTopic:
		return decodeCreators(log)
	case CreateCollectionTopic:
		return decodeCreateCollection(log)
	case OwnershipTransferredTopic:
		return decodeOwnershipTransferred(log)
	default:
		return nil, ErrIrrelevant
	}
}

func decodeERC721Transfer(log types.Log) ([]decoded, error) {
	if len(log.Topics) == 3 {
		// ERC20 Transfer
		return nil, ErrIrrelevant
	}
	if len(log.Topics) != 4 {
		return nil, fmt.Errorf("invalid Transfer event: expected 3 or 4 topics, got %d", len(log.Topics))
	}

	return []decoded{transfer{
		token:   log.Address,
		from:    topicAddress(log.Topics[1]),
		to:      topicAddress(log.Topics[2]),
		tokenID: amountOf(log.Topics[3].Bytes()),
		value:   model.NewAmount(1),
	}}, nil
}

func decodeTransferSingle(log types.Log) ([]decoded, error) {
	if len(log.Topics) != 4 {
		return nil, fmt.Errorf("invalid ERC1155 TransferSingle event: expected 4 topics, got %d", len(log.Topics))
	}
	if len(log.Data) < 64 {
		return nil, errors.New("invalid ERC1155 TransferSingle event: insufficient data")
	}

	// first 32 bytes = token ID, next 32 bytes = value
	return []decoded{transfer{
		token:   log.Address,
		from:    topicAddress(log.Topics[2]),
		to:      topicAddress(log.Topics[3]),
		tokenID: amountOf(log.Data[0:32]),
		value:   amountOf(log.Data[32:64]),
	}}, nil
}

func decodeTransferBatch(log types.Log) ([]decoded, error) {
	if len(log.Topics) != 4 {
		return nil, fmt.Errorf("invalid ERC1155 TransferBatch event: expected 4 topics, got %d", len(log.Topics))
	}

	values, err := unpack("TransferBatch", log.Data)
	if err != nil {
		return nil, err
	}

	ids, okIDs := values[0].([]*big.Int)
	amounts, okAmounts := values[1].([]*big.Int)
	if !okIDs || !okAmounts {
		return nil, errors.New("invalid ERC1155 TransferBatch event: unexpected data layout")
	}
	if len(ids) != len(amounts) {
		return nil, fmt.Errorf("invalid ERC1155 TransferBatch event: %d ids but %d values", len(ids), len(amounts))
	}

	from := topicAddress(log.Topics[2])
	to := topicAddress(log.Topics[3])

	out := make([]decoded, 0, len(ids))
	for i := range ids {
		id, err := bigAmount(ids[i])
		if err != nil {
			return nil, err
		}
		value, err := bigAmount(amounts[i])
		if err != nil {
			return nil, err
		}

		out = append(out, transfer{token: log.Address, from: from, to: to, tokenID: id, value: value})
	}

	return out, nil
}

func decodeMintLazy(log types.Log) ([]decoded, error) {
	values, err := unpack("MintLazy", log.Data)
	if err != nil {
		return nil, err
	}

	tokenID, err := bigValue(values[0])
	if err != nil {
		return nil, err
	}
	value, err := bigValue(values[1])
	if err != nil {
		return nil, err
	}
	creators, ok := values[2].([]common.Address)
	if !ok {
		return nil, errors.New("invalid MintLazy event: unexpected creators type")
	}

	return []decoded{lazyMint{token: log.Address, tokenID: tokenID, value: value, creators: creators}}, nil
}

func decodeBurnLazy(log types.Log) ([]decoded, error) {
	if len(log.Data) < 64 {
		return nil, errors.New("invalid BurnLazy event: insufficient data")
	}

	return []decoded{lazyBurn{
		token:   log.Address,
		tokenID: amountOf(log.Data[0:32]),
		value:   amountOf(log.Data[32:64]),
	}}, nil
}

func decodeCreators(log types.Log) ([]decoded, error) {
	values, err := unpack("Creators", log.Data)
	if err != nil {
		return nil, err
	}

	tokenID, err := bigValue(values[0])
	if err != nil {
		return nil, err
	}
	creators, ok := values[1].([]common.Address)
	if !ok {
		return nil, errors.New("invalid Creators event: unexpected creators type")
	}

	return []decoded{creatorsChange{token: log.Address, tokenID: tokenID, creators: creators}}, nil
}

func decodeCreateCollection(log types.Log) ([]decoded, error) {
	values, err := unpack("CreateCollection", log.Data)
	if err != nil {
		return nil, err
	}

	owner, okOwner := values[0].(common.Address)
	name, okName := values[1].(string)
	symbol, okSymbol := values[2].(string)
	if !okOwner || !okName || !okSymbol {
		return nil, errors.New("invalid CreateCollection event: unexpected data layout")
	}

	return []decoded{collectionCreated{token: log.Address, owner: owner, name: name, symbol: symbol}}, nil
}

func decodeOwnershipTransferred(log types.Log) ([]decoded, error) {
	if len(log.Topics) != 3 {
		return nil, fmt.Errorf("invalid OwnershipTransferred event: expected 3 topics, got %d", len(log.Topics))
	}

	return []decoded{ownershipMoved{
		token:    log.Address,
		previous: topicAddress(log.Topics[1]),
		next:     topicAddress(log.Topics[2]),
	}}, nil
}

func unpack(event string, data []byte) ([]any, error) {
	values, err := parsedEvents.Events[event].Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("invalid %s event: %w", event, err)
	}
	return values, nil
}

func topicAddress(topic common.Hash) common.Address {
	return common.BytesToAddress(topic.Bytes())
}

func amountOf(word []byte) model.Amount {
	return model.AmountFromUint256(new(uint256.Int).SetBytes(word))
}

func bigValue(v any) (model.Amount, error) {
	b, ok := v.(*big.Int)
	if !ok {
		return model.Amount{}, fmt.Errorf("unexpected numeric type %T", v)
	}
	return bigAmount(b)
}

func bigAmount(b *big.Int) (model.Amount, error) {
	u, overflow := uint256.FromBig(b)
	if overflow {
		return model.Amount{}, fmt.Errorf("value %s overflows 256 bits", b)
	}
	return model.AmountFromUint256(u), nil
}

// creatorParts splits authorship evenly, giving the rounding remainder to the first creator.
func creatorParts(creators []common.Address) []model.Part {
	if len(creators) == 0 {
		return nil
	}

	share := model.FullPart / len(creators)
	parts := make([]model.Part, len(creators))
	for i, c := range creators {
		parts[i] = model.Part{Account: c, Value: uint16(share)} //nolint:gosec
	}
	parts[0].Value += uint16(model.FullPart - share*len(creators)) //nolint:gosec

	return parts
}

type transfer struct {
	token    common.Address
	from, to common.Address
	tokenID  model.Amount
	value    model.Amount
}

func (t transfer) events(family model.Family, base model.Event, _ listener.LogRecord) []model.Event {
	zero := common.Address{}
	if t.from == zero && t.to == zero {
		return nil
	}

	switch family {
	case model.FamilyItem:
		base.EntityID = model.ItemID(t.token, t.tokenID)
		switch {
		case t.from == zero:
			return []model.Event{base.WithPayload(model.Mint{Owner: t.to, Value: t.value})}
		case t.to == zero:
			return []model.Event{base.WithPayload(model.Burn{Owner: t.from, Value: t.value})}
		default:
			return []model.Event{base.WithPayload(model.Transfer{From: t.from, To: t.to, Value: t.value})}
		}

	case model.FamilyOwnership:
		if t.from == t.to {
			// no change of balance
			return nil
		}

		var out []model.Event
		if t.from != zero {
			e := base.WithPayload(model.TransferFrom{To: t.to, Value: t.value})
			e.EntityID = model.OwnershipID(t.token, t.tokenID, t.from)
			out = append(out, e)
		}
		if t.to != zero {
			e := base.WithPayload(model.TransferTo{From: t.from, Value: t.value})
			e.EntityID = model.OwnershipID(t.token, t.tokenID, t.to)
			out = append(out, e)
		}
		return out
	}

	return nil
}

type lazyMint struct {
	token    common.Address
	tokenID  model.Amount
	value    model.Amount
	creators []common.Address
}

func (l lazyMint) events(family model.Family, base model.Event, _ listener.LogRecord) []model.Event {
	switch family {
	case model.FamilyItem:
		base.EntityID = model.ItemID(l.token, l.tokenID)
		return []model.Event{base.WithPayload(model.LazyMint{Value: l.value, Creators: creatorParts(l.creators)})}

	case model.FamilyOwnership:
		if len(l.creators) == 0 {
			return nil
		}
		// lazy supply is held by the first creator
		base.EntityID = model.OwnershipID(l.token, l.tokenID, l.creators[0])
		return []model.Event{base.WithPayload(model.LazyMint{Value: l.value})}
	}

	return nil
}

type lazyBurn struct {
	token   common.Address
	tokenID model.Amount
	value   model.Amount
}

func (l lazyBurn) events(family model.Family, base model.Event, rec listener.LogRecord) []model.Event {
	switch family {
	case model.FamilyItem:
		base.EntityID = model.ItemID(l.token, l.tokenID)
		return []model.Event{base.WithPayload(model.LazyBurn{Value: l.value})}

	case model.FamilyOwnership:
		if rec.Sender == (common.Address{}) {
			return nil
		}
		// withdrawn from the lazy supply of the sender
		base.EntityID = model.OwnershipID(l.token, l.tokenID, rec.Sender)
		return []model.Event{base.WithPayload(model.LazyBurn{Value: l.value})}
	}

	return nil
}

type creatorsChange struct {
	token    common.Address
	tokenID  model.Amount
	creators []common.Address
}

func (c creatorsChange) events(family model.Family, base model.Event, _ listener.LogRecord) []model.Event {
	if family != model.FamilyItem {
		return nil
	}

	base.EntityID = model.ItemID(c.token, c.tokenID)
	return []model.Event{base.WithPayload(model.CreatorsChange{Creators: creatorParts(c.creators)})}
}

type collectionCreated struct {
	token        common.Address
	owner        common.Address
	name, symbol string
}

func (c collectionCreated) events(family model.Family, base model.Event, _ listener.LogRecord) []model.Event {
	if family != model.FamilyToken {
		return nil
	}

	base.EntityID = model.TokenID(c.token)
	return []model.Event{base.WithPayload(model.CollectionCreate{Owner: c.owner, Name: c.name, Symbol: c.symbol})}
}

type ownershipMoved struct {
	token          common.Address
	previous, next common.Address
}

func (o ownershipMoved) events(family model.Family, base model.Event, _ listener.LogRecord) []model.Event {
	if family != model.FamilyToken {
		return nil
	}

	base.EntityID = model.TokenID(o.token)
	return []model.Event{base.WithPayload(model.OwnershipTransfer{PreviousOwner: o.previous, NewOwner: o.next})}
}
