package tax

import "testing"

func TestSplitTenPercent(t *testing.T) {
	p := Policy{RateBasisPoints: 1_000, AccountCode: "vault:tax"}

	net, withheld := p.Split(100)
	if net != 90 || withheld != 10 {
		t.Fatalf("expected 90/10 split, got %d/%d", net, withheld)
	}
}

func TestSplitFloorsTax(t *testing.T) {
	p := Policy{RateBasisPoints: 1_000, AccountCode: "vault:tax"}

	// 10% of 99 is 9.9; the withheld portion floors to 9.
	net, withheld := p.Split(99)
	if withheld != 9 {
		t.Fatalf("expected floored tax 9, got %d", withheld)
	}
	if net+withheld != 99 {
		t.Fatalf("split does not conserve the gross amount: %d + %d", net, withheld)
	}
}

func TestSplitConservesAcrossRates(t *testing.T) {
	amounts := []int64{1, 7, 99, 10_000, 123_456_789, 1 << 55}
	rates := []int64{0, 1, 250, 1_000, 9_999, 10_000}

	for _, rate := range rates {
		p := Policy{RateBasisPoints: rate, AccountCode: "vault:tax"}
		for _, gross := range amounts {
			net, withheld := p.Split(gross)
			if net+withheld != gross {
				t.Fatalf("rate %d gross %d: %d + %d != gross", rate, gross, net, withheld)
			}
			if withheld < 0 || net < 0 {
				t.Fatalf("rate %d gross %d: negative portion", rate, gross)
			}
		}
	}
}

func TestSplitFullWithholding(t *testing.T) {
	p := Policy{RateBasisPoints: 10_000, AccountCode: "vault:tax"}
	net, withheld := p.Split(500)
	if net != 0 || withheld != 500 {
		t.Fatalf("expected full withholding, got net=%d tax=%d", net, withheld)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		policy  Policy
		wantErr bool
	}{
		{"valid", Policy{RateBasisPoints: 1_000, AccountCode: "vault:tax"}, false},
		{"zero rate without account", Policy{}, false},
		{"negative rate", Policy{RateBasisPoints: -1}, true},
		{"rate above denominator", Policy{RateBasisPoints: 10_001, AccountCode: "vault:tax"}, true},
		{"missing account", Policy{RateBasisPoints: 500}, true},
	}
	for _, tc := range cases {
		if err := tc.policy.Validate(); (err != nil) != tc.wantErr {
			t.Fatalf("%s: unexpected validation result: %v", tc.name, err)
		}
	}
}
