package chain

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestAsBigIntAcceptedShapes(t *testing.T) {
	want := big.NewInt(17000)

	cases := map[string]interface{}{
		"big.Int pointer": big.NewInt(17000),
		"big.Int value":   *big.NewInt(17000),
		"bigIntable":      decimal.NewFromInt(17000),
		"uint64":          uint64(17000),
		"int64":           int64(17000),
		"int":             int(17000),
		"uint":            uint(17000),
		"int32":           int32(17000),
		"uint32":          uint32(17000),
		"float64":         float64(17000),
		"json.Number":     json.Number("17000"),
		"decimal string":  "17000",
		"hex string":      "0x4268",
	}

	for name, in := range cases {
		got, err := AsBigInt(in)
		if err != nil {
			t.Errorf("%s: AsBigInt failed: %v", name, err)
			continue
		}
		if got.Cmp(want) != 0 {
			t.Errorf("%s: AsBigInt = %s, want %s", name, got, want)
		}
	}
}

func TestAsBigIntPrefersBigIntConversion(t *testing.T) {
	// A big-integer-like value beyond float precision must convert exactly.
	huge, _ := new(big.Int).SetString("250000000000000000000000001", 10)
	d := decimal.NewFromBigInt(huge, 0)

	got, err := AsBigInt(d)
	if err != nil {
		t.Fatalf("AsBigInt failed: %v", err)
	}
	if got.Cmp(huge) != 0 {
		t.Errorf("AsBigInt = %s, want %s", got, huge)
	}
}

func TestAsBigIntRejections(t *testing.T) {
	rejected := []interface{}{
		nil,
		(*big.Int)(nil),
		float64(1.5),
		"",
		"0x",
		"not-a-number",
		struct{}{},
		true,
	}

	for _, in := range rejected {
		if _, err := AsBigInt(in); err == nil {
			t.Errorf("AsBigInt(%#v) succeeded, want error", in)
		}
	}
}

func TestAsBigIntCopiesInput(t *testing.T) {
	in := big.NewInt(42)
	out, err := AsBigInt(in)
	if err != nil {
		t.Fatalf("AsBigInt failed: %v", err)
	}
	out.SetInt64(99)
	if in.Int64() != 42 {
		t.Error("AsBigInt aliased its input")
	}
}

func TestAsUint64(t *testing.T) {
	got, err := AsUint64(big.NewInt(7))
	if err != nil || got != 7 {
		t.Fatalf("AsUint64 = %d, %v", got, err)
	}

	if _, err := AsUint64(big.NewInt(-1)); err == nil {
		t.Error("negative value accepted as uint64")
	}

	tooBig, _ := new(big.Int).SetString("18446744073709551616", 10)
	if _, err := AsUint64(tooBig); err == nil {
		t.Error("out-of-range value accepted as uint64")
	}
}

func TestAsInt64(t *testing.T) {
	got, err := AsInt64("1699999999")
	if err != nil || got != 1699999999 {
		t.Fatalf("AsInt64 = %d, %v", got, err)
	}

	tooBig, _ := new(big.Int).SetString("9223372036854775808", 10)
	if _, err := AsInt64(tooBig); err == nil {
		t.Error("out-of-range value accepted as int64")
	}
}
