package model

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const idSeparator = ":"

// ItemID returns the id of the item tokenID of collection token.
func ItemID(token common.Address, tokenID Amount) string {
	return strings.ToLower(token.Hex()) + idSeparator + tokenID.String()
}

// OwnershipID returns the id of owner's share of an item.
func OwnershipID(token common.Address, tokenID Amount, owner common.Address) string {
	return ItemID(token, tokenID) + idSeparator + strings.ToLower(owner.Hex())
}

// TokenID returns the id of a collection.
func TokenID(token common.Address) string {
	return strings.ToLower(token.Hex())
}

// ItemKey is the parsed form of an item id.
type ItemKey struct {
	Token   common.Address
	TokenID Amount
}

// OwnershipKey is the parsed form of an ownership id.
type OwnershipKey struct {
	ItemKey
	Owner common.Address
}

// ParseItemID parses an id produced by ItemID.
func ParseItemID(id string) (ItemKey, error) {
	parts := strings.Split(id, idSeparator)
	if len(parts) != 2 {
		return ItemKey{}, fmt.Errorf("invalid item id %q", id)
	}
	return parseItemParts(id, parts[0], parts[1])
}

// ParseOwnershipID parses an id produced by OwnershipID.
func ParseOwnershipID(id string) (OwnershipKey, error) {
	parts := strings.Split(id, idSeparator)
	if len(parts) != 3 {
		return OwnershipKey{}, fmt.Errorf("invalid ownership id %q", id)
	}

	item, err := parseItemParts(id, parts[0], parts[1])
	if err != nil {
		return OwnershipKey{}, err
	}
	if !common.IsHexAddress(parts[2]) {
		return OwnershipKey{}, fmt.Errorf("invalid owner in ownership id %q", id)
	}

	return OwnershipKey{ItemKey: item, Owner: common.HexToAddress(parts[2])}, nil
}

// ParseTokenID parses an id produced by TokenID.
func ParseTokenID(id string) (common.Address, error) {
	if !common.IsHexAddress(id) {
		return common.Address{}, fmt.Errorf("invalid token id %q", id)
	}
	return common.HexToAddress(id), nil
}

func parseItemParts(id, token, tokenID string) (ItemKey, error) {
	if !common.IsHexAddress(token) {
		return ItemKey{}, fmt.Errorf("invalid token in id %q", id)
	}

	value, err := ParseAmount(tokenID)
	if err != nil {
		return ItemKey{}, fmt.Errorf("invalid token id in id %q: %w", id, err)
	}

	return ItemKey{Token: common.HexToAddress(token), TokenID: value}, nil
}

// NewItem returns the empty template of the item with the given id.
func NewItem(id string) (Item, error) {
	key, err := ParseItemID(id)
	if err != nil {
		return Item{}, err
	}

	return Item{
		Envelope: Envelope{ID: id, Deleted: true},
		Token:    key.Token,
		TokenID:  key.TokenID,
		Owners:   map[common.Address]Amount{},
	}, nil
}

// NewOwnership returns the empty template of the ownership with the given id.
func NewOwnership(id string) (Ownership, error) {
	key, err := ParseOwnershipID(id)
	if err != nil {
		return Ownership{}, err
	}

	return Ownership{
		Envelope: Envelope{ID: id, Deleted: true},
		Token:    key.Token,
		TokenID:  key.TokenID,
		Owner:    key.Owner,
	}, nil
}

// NewToken returns the empty template of the collection with the given id.
func NewToken(id string) (Token, error) {
	address, err := ParseTokenID(id)
	if err != nil {
		return Token{}, err
	}

	return Token{
		Envelope: Envelope{ID: id, Deleted: true},
		Address:  address,
	}, nil
}
