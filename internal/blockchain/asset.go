package blockchain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	AssetHBD  = "HBD"
	AssetHIVE = "HIVE"

	assetPrecision = 3
)

// Asset is an amount of a liquid Hive token.
type Asset struct {
	Amount decimal.Decimal
	Symbol string
}

func NewAsset(amount decimal.Decimal, symbol string) (Asset, error) {
	if !IsSupportedAsset(symbol) {
		return Asset{}, fmt.Errorf("unsupported asset %q", symbol)
	}
	if !amount.Equal(amount.Truncate(assetPrecision)) {
		return Asset{}, fmt.Errorf("amount %s has more than %d decimals", amount, assetPrecision)
	}
	return Asset{Amount: amount, Symbol: symbol}, nil
}

func IsSupportedAsset(symbol string) bool {
	return symbol == AssetHBD || symbol == AssetHIVE
}

// ParseAsset reads the "12.345 HBD" form used by condenser_api.
func ParseAsset(s string) (Asset, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return Asset{}, fmt.Errorf("malformed asset %q", s)
	}

	amount, err := decimal.NewFromString(fields[0])
	if err != nil {
		return Asset{}, fmt.Errorf("malformed asset amount %q: %w", s, err)
	}

	return NewAsset(amount, fields[1])
}

func (a Asset) String() string {
	return a.Amount.StringFixed(assetPrecision) + " " + a.Symbol
}

// satoshis returns the integer amount at chain precision.
func (a Asset) satoshis() int64 {
	return a.Amount.Shift(assetPrecision).IntPart()
}

// wireSymbol is the legacy symbol still used by the binary serialization.
func (a Asset) wireSymbol() string {
	switch a.Symbol {
	case AssetHBD:
		return "SBD"
	case AssetHIVE:
		return "STEEM"
	}
	return a.Symbol
}
