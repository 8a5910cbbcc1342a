package ruletree

import (
	"testing"
)

func TestCompareKind(t *testing.T) {
	cases := []struct {
		name    string
		cmp     Cmp
		kind    Kind
		a, b    string
		want    bool
		wantErr bool
	}{
		{"integer eq", Eq, Integer{}, "7", "7", true, false},
		{"integer eq trims", Eq, Integer{}, " 7 ", "7", true, false},
		{"decimal lt", Lt, Decimal{}, "1.5", "2", true, false},
		{"decimal gte", Gte, Decimal{}, "2.0", "2", true, false},
		{"numeric parse error", Eq, Integer{}, "x", "7", false, true},
		{"numeric parse error rhs", Eq, Decimal{}, "7", "x", false, true},
		{"string lexical", Lt, String{}, "apple", "banana", true, false},
		{"string not numeric", Eq, String{}, "07", "7", false, false},
		{"date dashed vs plain", Eq, Date{}, "2024-03-01", "20240301", true, false},
		{"date slashed lt", Lt, Date{}, "2024/02/29", "20240301", true, false},
		{"enum lexical", Neq, Enum{}, "OPEN", "CLOSED", true, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := compareKind(c.cmp, c.kind, c.a, c.b)
			if c.wantErr {
				if err == nil {
					t.Fatalf("expected an error comparing %q %s %q", c.a, c.cmp, c.b)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != c.want {
				t.Fatalf("%q %s %q: got %v, want %v", c.a, c.cmp, c.b, got, c.want)
			}
		})
	}
}

func TestEvalArith(t *testing.T) {
	cases := []struct {
		name     string
		ops      []rune
		operands []string
		want     string
		wantErr  bool
	}{
		{"product", []rune{'*'}, []string{"20", "4"}, "80", false},
		{"left to right", []rune{'+', '*'}, []string{"1", "2", "3"}, "9", false},
		{"division", []rune{'/'}, []string{"7", "2"}, "3.5", false},
		{"single operand", nil, []string{"5.50"}, "5.5", false},
		{"division by zero", []rune{'/'}, []string{"1", "0"}, "", true},
		{"bad operand", []rune{'+'}, []string{"1", "x"}, "", true},
		{"shape mismatch", []rune{'+'}, []string{"1"}, "", true},
		{"no operands", nil, nil, "", true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := evalArith(c.ops, c.operands)
			if c.wantErr {
				if err == nil {
					t.Fatalf("expected an error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if formatDecimal(got) != c.want {
				t.Fatalf("got %s, want %s", formatDecimal(got), c.want)
			}
		})
	}
}

func TestCustomVerdict(t *testing.T) {
	cases := []struct {
		in     string
		pass   bool
		severe bool
	}{
		{"1", true, false},
		{"true", true, false},
		{" true ", true, false},
		{"0", false, false},
		{"false", false, false},
		{"maybe", false, true},
		{"", false, true},
		{"TRUE", false, true},
	}

	for _, c := range cases {
		pass, severe := customVerdict(c.in)
		if pass != c.pass || severe != c.severe {
			t.Fatalf("verdict %q: got (%v, %v), want (%v, %v)", c.in, pass, severe, c.pass, c.severe)
		}
	}
}

func TestNormalizeDate(t *testing.T) {
	cases := map[string]string{
		"2024-03-01": "20240301",
		"2024/03/01": "20240301",
		"2024.03.01": "20240301",
		"20240301":   "20240301",
		" 20240301 ": "20240301",
	}
	for in, want := range cases {
		if got := normalizeDate(in); got != want {
			t.Fatalf("normalizeDate(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatDecimalStripsTrailingZeros(t *testing.T) {
	cases := map[float64]string{
		80:    "80",
		3.5:   "3.5",
		0.25:  "0.25",
		100.0: "100",
	}
	for in, want := range cases {
		if got := formatDecimal(in); got != want {
			t.Fatalf("formatDecimal(%v) = %q, want %q", in, got, want)
		}
	}
}
