package discount

// ValidationError indicates malformed or out-of-range input: a bad
// percentage, a bad mapping shape, a non-numeric id key, or a wrapped
// storage failure. Callers surface it as a 400-class response.
//
// Storage and commit failures intentionally share this kind with bad input
// rather than getting their own; the HTTP contract does not distinguish them.
type ValidationError struct {
	Msg string
	Err error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NotFoundError indicates flat mode found nothing to discount: either no
// accessory records exist, or none had a non-null price. Callers surface it
// as a 404 response.
type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string { return e.Msg }
