package tax

import "fmt"

// BasisPointDenominator is the fixed denominator for withholding rates.
const BasisPointDenominator = 10_000

// Policy holds the deployment-wide withholding configuration. It is read-only
// to the settlement engine.
type Policy struct {
	RateBasisPoints int64
	AccountCode     string
}

// Validate checks the policy is usable: rate within [0, 10000] and a
// destination account configured whenever the rate is non-zero.
func (p Policy) Validate() error {
	if p.RateBasisPoints < 0 || p.RateBasisPoints > BasisPointDenominator {
		return fmt.Errorf("tax rate must be between 0 and %d basis points, got %d", BasisPointDenominator, p.RateBasisPoints)
	}
	if p.RateBasisPoints > 0 && p.AccountCode == "" {
		return fmt.Errorf("tax account code is required when the rate is non-zero")
	}
	return nil
}

// Split divides a gross settled amount into the recipient's net portion and
// the withheld tax. The tax is floor(gross * rate / 10000) computed with the
// quotient/remainder decomposition so the intermediate product cannot
// overflow int64 for any valid gross amount. net + tax == gross always.
func (p Policy) Split(gross int64) (net, withheld int64) {
	if gross <= 0 || p.RateBasisPoints == 0 {
		return gross, 0
	}
	q := gross / BasisPointDenominator
	r := gross % BasisPointDenominator
	withheld = q*p.RateBasisPoints + r*p.RateBasisPoints/BasisPointDenominator
	return gross - withheld, withheld
}
