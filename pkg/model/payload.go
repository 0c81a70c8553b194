package model

import (
	"github.com/ethereum/go-ethereum/common"
)

// Kind names an event payload variant.
type Kind string

const (
	KindTransferTo        Kind = "transfer_to"
	KindTransferFrom      Kind = "transfer_from"
	KindMint              Kind = "mint"
	KindBurn              Kind = "burn"
	KindTransfer          Kind = "transfer"
	KindLazyMint          Kind = "lazy_mint"
	KindLazyBurn          Kind = "lazy_burn"
	KindCreators          Kind = "creators"
	KindCollectionCreate  Kind = "collection_create"
	KindOwnershipTransfer Kind = "ownership_transfer"
)

// Payload is the closed set of event variants. Only types in this package
// implement it.
type Payload interface {
	Kind() Kind
	payload()
}

// Numeric is implemented by payloads whose whole effect is a summable
// amount. Events of the same block sharing a merge key can be compacted.
type Numeric interface {
	Payload
	Amount() Amount
	WithAmount(Amount) Payload
	MergeKey() string
}

// Part is a share of an item's authorship in basis points.
type Part struct {
	Account common.Address `json:"account"`
	Value   uint16         `json:"value"`
}

// FullPart is the basis-point value of a sole creator.
const FullPart = 10000

// NewFullPart returns a Part owning the whole share.
func NewFullPart(account common.Address) Part {
	return Part{Account: account, Value: FullPart}
}

// TokenStandard is the token interface implemented by a collection.
type TokenStandard string

const (
	StandardUnknown TokenStandard = ""
	StandardERC721  TokenStandard = "ERC721"
	StandardERC1155 TokenStandard = "ERC1155"
	StandardNone    TokenStandard = "NONE"
)

// TransferTo credits an ownership with Value received from From.
type TransferTo struct {
	From  common.Address `json:"from"`
	Value Amount         `json:"value"`
}

// TransferFrom debits an ownership by Value sent to To.
type TransferFrom struct {
	To    common.Address `json:"to"`
	Value Amount         `json:"value"`
}

// Mint increases an item's supply held by Owner.
type Mint struct {
	Owner common.Address `json:"owner"`
	Value Amount         `json:"value"`
}

// Burn decreases an item's supply held by Owner.
type Burn struct {
	Owner common.Address `json:"owner"`
	Value Amount         `json:"value"`
}

// Transfer moves part of an item's supply between owners.
type Transfer struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value Amount         `json:"value"`
}

// LazyMint announces supply that is not minted on chain yet.
type LazyMint struct {
	Value    Amount `json:"value"`
	Creators []Part `json:"creators,omitempty"`
}

// LazyBurn withdraws lazily minted supply.
type LazyBurn struct {
	Value Amount `json:"value"`
}

// CreatorsChange replaces an item's creators.
type CreatorsChange struct {
	Creators []Part `json:"creators"`
}

// CollectionCreate registers a collection contract.
type CollectionCreate struct {
	Owner    common.Address `json:"owner"`
	Name     string         `json:"name"`
	Symbol   string         `json:"symbol"`
	Standard TokenStandard  `json:"standard,omitempty"`
}

// OwnershipTransfer changes the owner of a collection contract.
type OwnershipTransfer struct {
	PreviousOwner common.Address `json:"previousOwner"`
	NewOwner      common.Address `json:"newOwner"`
}

func (TransferTo) Kind() Kind        { return KindTransferTo }
func (TransferFrom) Kind() Kind      { return KindTransferFrom }
func (Mint) Kind() Kind              { return KindMint }
func (Burn) Kind() Kind              { return KindBurn }
func (Transfer) Kind() Kind          { return KindTransfer }
func (LazyMint) Kind() Kind          { return KindLazyMint }
func (LazyBurn) Kind() Kind          { return KindLazyBurn }
func (CreatorsChange) Kind() Kind    { return KindCreators }
func (CollectionCreate) Kind() Kind  { return KindCollectionCreate }
func (OwnershipTransfer) Kind() Kind { return KindOwnershipTransfer }

func (TransferTo) payload()        {}
func (TransferFrom) payload()      {}
func (Mint) payload()              {}
func (Burn) payload()              {}
func (Transfer) payload()          {}
func (LazyMint) payload()          {}
func (LazyBurn) payload()          {}
func (CreatorsChange) payload()    {}
func (CollectionCreate) payload()  {}
func (OwnershipTransfer) payload() {}

func (p TransferTo) Amount() Amount   { return p.Value }
func (p TransferFrom) Amount() Amount { return p.Value }
func (p Mint) Amount() Amount         { return p.Value }
func (p Burn) Amount() Amount         { return p.Value }
func (p Transfer) Amount() Amount     { return p.Value }

func (p TransferTo) WithAmount(a Amount) Payload   { p.Value = a; return p }
func (p TransferFrom) WithAmount(a Amount) Payload { p.Value = a; return p }
func (p Mint) WithAmount(a Amount) Payload         { p.Value = a; return p }
func (p Burn) WithAmount(a Amount) Payload         { p.Value = a; return p }
func (p Transfer) WithAmount(a Amount) Payload     { p.Value = a; return p }

func (p TransferTo) MergeKey() string   { return string(KindTransferTo) + ":" + p.From.Hex() }
func (p TransferFrom) MergeKey() string { return string(KindTransferFrom) + ":" + p.To.Hex() }
func (p Mint) MergeKey() string         { return string(KindMint) + ":" + p.Owner.Hex() }
func (p Burn) MergeKey() string         { return string(KindBurn) + ":" + p.Owner.Hex() }
func (p Transfer) MergeKey() string {
	return string(KindTransfer) + ":" + p.From.Hex() + ":" + p.To.Hex()
}

// Inverse returns the payload whose effect undoes p. Lazy payloads and
// collection creation have no inverse. A creators change is its own inverse:
// undoing it re-derives creators from the remaining history.
func Inverse(p Payload) (Payload, bool) {
	switch v := p.(type) {
	case TransferTo:
		return TransferFrom{To: v.From, Value: v.Value}, true
	case TransferFrom:
		return TransferTo{From: v.To, Value: v.Value}, true
	case Mint:
		return Burn{Owner: v.Owner, Value: v.Value}, true
	case Burn:
		return Mint{Owner: v.Owner, Value: v.Value}, true
	case Transfer:
		return Transfer{From: v.To, To: v.From, Value: v.Value}, true
	case OwnershipTransfer:
		return OwnershipTransfer{PreviousOwner: v.NewOwner, NewOwner: v.PreviousOwner}, true
	case CreatorsChange:
		return v, true
	default:
		return nil, false
	}
}
