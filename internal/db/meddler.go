package db

import (
	"database/sql"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"
)

func init() {
	meddler.Default = meddler.SQLite

	meddler.Register("address", hexMeddler[common.Address]{parse: common.HexToAddress})
	meddler.Register("hash", hexMeddler[common.Hash]{parse: common.HexToHash})
}

// hexer is a fixed-size chain value stored as its 0x-prefixed hex string.
type hexer interface {
	Hex() string
}

// hexMeddler stores T (or *T) as a hex TEXT column. NULL reads back as the
// zero value, or nil for pointer fields.
type hexMeddler[T hexer] struct {
	parse func(string) T
}

func (hexMeddler[T]) PreRead(any) (any, error) {
	return new(sql.NullString), nil
}

func (h hexMeddler[T]) PostRead(fieldAddr, scanTarget any) error {
	ns, ok := scanTarget.(*sql.NullString)
	if !ok {
		return fmt.Errorf("hex meddler: unexpected scan target %T", scanTarget)
	}

	switch field := fieldAddr.(type) {
	case *T:
		var zero T
		*field = zero
		if ns.Valid {
			*field = h.parse(ns.String)
		}
	case **T:
		*field = nil
		if ns.Valid {
			v := h.parse(ns.String)
			*field = &v
		}
	default:
		return fmt.Errorf("hex meddler: unsupported field type %T", fieldAddr)
	}

	return nil
}

func (hexMeddler[T]) PreWrite(field any) (any, error) {
	switch v := field.(type) {
	case T:
		return v.Hex(), nil
	case *T:
		if v == nil {
			return nil, nil
		}
		return (*v).Hex(), nil
	default:
		return nil, fmt.Errorf("hex meddler: unsupported field type %T", field)
	}
}
