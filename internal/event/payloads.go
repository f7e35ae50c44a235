package event

import (
	"math/big"

	"VaultLedger/internal/asset"
)

// Deposited records a credited deposit. AmountNative is in the deposited
// asset's native precision; AmountCredited is in accounting units.
type Deposited struct {
	Principal      string       `json:"principal"`
	Asset          asset.Symbol `json:"asset"`
	AmountNative   *big.Int     `json:"amount_native"`
	AmountCredited *big.Int     `json:"amount_credited"`
}

// Withdrawn records a debited withdrawal in accounting units.
type Withdrawn struct {
	Principal string   `json:"principal"`
	Amount    *big.Int `json:"amount"`
}

// Swapped records an executed conversion along a route. Amounts are in the
// native precisions of the respective assets.
type Swapped struct {
	AssetIn   asset.Symbol `json:"asset_in"`
	AssetOut  asset.Symbol `json:"asset_out"`
	AmountIn  *big.Int     `json:"amount_in"`
	AmountOut *big.Int     `json:"amount_out"`
}

// AssetRegistered records an administrative asset registration.
type AssetRegistered struct {
	Asset    asset.Symbol   `json:"asset"`
	Decimals uint8          `json:"decimals"`
	Route    []asset.Symbol `json:"route"`
}

// SlippageUpdated records an administrative tolerance change.
type SlippageUpdated struct {
	OldBps uint64 `json:"old_bps"`
	NewBps uint64 `json:"new_bps"`
}
