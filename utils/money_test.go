package utils

import "testing"

func TestFormatMinorUnits(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{99, "0.99"},
		{100, "1.00"},
		{540, "5.40"},
		{123456, "1,234.56"},
		{100000000, "1,000,000.00"},
	}
	for _, c := range cases {
		if got := FormatMinorUnits(c.in); got != c.want {
			t.Errorf("FormatMinorUnits(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}
