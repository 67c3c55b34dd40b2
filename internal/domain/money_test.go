package domain

import (
	"errors"
	"math"
	"testing"
)

func TestParseMoney(t *testing.T) {
	cases := []struct {
		raw     string
		want    Money
		wantErr bool
	}{
		{raw: "3.50", want: 350},
		{raw: "7", want: 700},
		{raw: "0.01", want: 1},
		{raw: "1.5", want: 150},
		{raw: "1.234", wantErr: true},
		{raw: "-1.00", wantErr: true},
		{raw: "abc", wantErr: true},
		{raw: "92233720368547758.07", want: math.MaxInt64},
		{raw: "92233720368547758.08", wantErr: true},
		{raw: "99999999999999999999", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParseMoney(tc.raw)
			if tc.wantErr {
				if !IsValidation(err) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("ParseMoney(%q) = %d, want %d", tc.raw, got, tc.want)
			}
		})
	}
}

func TestMoneyString(t *testing.T) {
	if got := Money(700).String(); got != "7.00" {
		t.Fatalf("String() = %q, want 7.00", got)
	}
	if got := Money(350).Mul(2).String(); got != "7.00" {
		t.Fatalf("Mul(2).String() = %q, want 7.00", got)
	}
	if got := Money(5).String(); got != "0.05" {
		t.Fatalf("String() = %q, want 0.05", got)
	}
}

func TestMoneyCheckedArithmetic(t *testing.T) {
	got, err := Money(350).MulChecked(3)
	if err != nil || got != 1050 {
		t.Fatalf("MulChecked(3) = %d, %v", got, err)
	}
	half := Money(math.MaxInt64 / 2)
	if _, err := half.MulChecked(3); !errors.Is(err, ErrMoneyOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := Money(math.MaxInt64).AddChecked(1); !errors.Is(err, ErrMoneyOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if got := half.Mul(3); got != math.MaxInt64 {
		t.Fatalf("Mul saturates to MaxInt64, got %d", got)
	}
}
