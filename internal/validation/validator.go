package validation

import (
	"errors"
	"fmt"
	"math"
	"sort"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// register struct-level validation for CreatePendingOrderRequest to ensure
	// the provided Total matches the sum of (price * quantity) of items plus shipping.
	v.RegisterStructValidation(createPendingOrderStructValidation, CreatePendingOrderRequest{})

	return v
}

// createPendingOrderStructValidation verifies the aggregated total of items equals Total (within cents)
func createPendingOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreatePendingOrderRequest)

	var sum float64
	for _, it := range req.Items {
		sum += float64(it.Quantity) * it.Price
	}
	sum += req.ShippingCharges

	sumCents := int(math.Round(sum * 100))
	totalCents := int(math.Round(req.Total * 100))
	if sumCents != totalCents {
		sl.ReportError(req.Total, "total", "Total", "total_match_items", fmt.Sprintf("items sum %.2f != total %.2f", sum, req.Total))
	}
}

// Fields flattens a validator error into sorted "Namespace: tag" entries. Non-validation errors
// come back as a single entry.
func Fields(err error) []string {
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(ve))
	for _, fe := range ve {
		out = append(out, fmt.Sprintf("%s: %s", fe.StructNamespace(), fe.Tag()))
	}
	sort.Strings(out)
	return out
}
