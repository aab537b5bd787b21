package billing

import "errors"

var (
	// ErrPlanNotFound means the event references a Stripe price with no
	// product_offers row. Redelivering the same payload cannot succeed.
	ErrPlanNotFound = errors.New("billing: no product offer for stripe price")

	// ErrUserNotFound means the event could not be tied to a local user,
	// either the metadata user ref or the customer id resolved to nothing.
	ErrUserNotFound = errors.New("billing: no local user for event")
)

// IsRetryable classifies a processing failure. Reference errors are permanent
// and the webhook endpoint answers 4xx; everything else (DB, network, Stripe
// API) answers 5xx so Stripe redelivers.
func IsRetryable(err error) bool {
	return !errors.Is(err, ErrPlanNotFound) && !errors.Is(err, ErrUserNotFound)
}
