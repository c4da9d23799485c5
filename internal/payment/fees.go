package payment

import "fmt"

// Platform fee tiers in minor currency units (cents).
const (
	FeeResidential int64 = 39900
	FeeCommercial  int64 = 250000

	FeeCurrency = "usd"
)

// FeeForListingType returns the one-time platform fee for a listing type.
func FeeForListingType(listingType string) (int64, error) {
	switch listingType {
	case "residential":
		return FeeResidential, nil
	case "commercial":
		return FeeCommercial, nil
	default:
		return 0, fmt.Errorf("unknown listing type %q", listingType)
	}
}
