package fixedpoint

import (
	"math/big"
	"testing"
)

func TestToAccountingUnits_SameAssetIdentity(t *testing.T) {
	// 1,000,000 units at 6 decimals, price 1.0 at 0 decimals → 1,000,000
	amount := big.NewInt(1_000_000)
	got, err := ToAccountingUnits(amount, 6, big.NewInt(1), 0, 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(amount) != 0 {
		t.Errorf("got %s, want %s", got, amount)
	}
}

func TestToAccountingUnits_18DecAssetAt8DecPrice(t *testing.T) {
	// 1e18 native units of an 18-decimal asset, price 2000 at 8-decimal
	// precision, 6-decimal accounting unit → 2,000,000,000 accounting units
	amount := new(big.Int)
	amount.SetString("1000000000000000000", 10)
	price := new(big.Int)
	price.SetString("200000000000", 10) // 2000 * 1e8

	got, err := ToAccountingUnits(amount, 18, price, 8, 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := big.NewInt(2_000_000_000)
	if got.Cmp(want) != 0 {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestToAccountingUnits_TruncatesTowardZero(t *testing.T) {
	// 3 units at 0 decimals, price 0.50 (50 at 2-decimal precision),
	// 0-decimal target → 1.5 truncates to 1
	got, err := ToAccountingUnits(big.NewInt(3), 0, big.NewInt(50), 2, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Int64() != 1 {
		t.Errorf("got %s, want 1", got)
	}
}

func TestToAccountingUnits_Overflow(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 255)
	_, err := ToAccountingUnits(huge, 0, huge, 0, 0)
	if err != ErrArithmeticOverflow {
		t.Errorf("got %v, want ErrArithmeticOverflow", err)
	}
}

func TestFromAccountingUnits_ZeroPrice(t *testing.T) {
	_, err := FromAccountingUnits(big.NewInt(1_000_000), 6, big.NewInt(0), 8, 18)
	if err != ErrDivisionByZero {
		t.Errorf("got %v, want ErrDivisionByZero", err)
	}
}

func TestRoundTrip_BoundedTruncationError(t *testing.T) {
	// to-accounting then back recovers the input within one native unit
	cases := []struct {
		amount string
		source uint8
		price  string
		pDec   uint8
		target uint8
	}{
		{"1000000000000000000", 18, "200000000000", 8, 6},
		{"123456789012345678", 18, "199999999999", 8, 6},
		{"500000", 6, "100000000", 8, 6},
		{"999999999", 9, "31415926535", 8, 6},
	}

	for _, tc := range cases {
		amount := new(big.Int)
		amount.SetString(tc.amount, 10)
		price := new(big.Int)
		price.SetString(tc.price, 10)

		credited, err := ToAccountingUnits(amount, tc.source, price, tc.pDec, tc.target)
		if err != nil {
			t.Fatalf("to: %v", err)
		}
		back, err := FromAccountingUnits(credited, tc.target, price, tc.pDec, tc.source)
		if err != nil {
			t.Fatalf("from: %v", err)
		}

		diff := new(big.Int).Sub(amount, back)
		if diff.Sign() < 0 {
			t.Fatalf("round trip gained value: %s → %s", amount, back)
		}
		// error bound: less than one accounting unit's worth of native units
		bound := new(big.Int)
		bound.SetString("1000000000000", 10) // 1e-6 accounting unit at 18 native decimals
		if diff.Cmp(bound) > 0 {
			t.Errorf("amount %s: truncation error %s exceeds bound", tc.amount, diff)
		}
	}
}

func TestRescale(t *testing.T) {
	up := Rescale(big.NewInt(123), 2, 6)
	if up.Int64() != 1_230_000 {
		t.Errorf("scale up: got %s, want 1230000", up)
	}
	down := Rescale(big.NewInt(1_239_999), 6, 2)
	if down.Int64() != 123 {
		t.Errorf("scale down: got %s, want 123", down)
	}
}

func TestMinOutputAfterSlippage(t *testing.T) {
	est := big.NewInt(2_000_000_000)

	got := MinOutputAfterSlippage(est, 50) // 0.5%
	want := big.NewInt(1_990_000_000)
	if got.Cmp(want) != 0 {
		t.Errorf("50bps: got %s, want %s", got, want)
	}

	if MinOutputAfterSlippage(est, 0).Cmp(est) != 0 {
		t.Error("0bps should return the estimate unchanged")
	}
	if MinOutputAfterSlippage(est, 10_000).Sign() != 0 {
		t.Error("10000bps should clamp to zero")
	}
}
