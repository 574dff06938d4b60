package helper

import "fmt"

// NewError wraps err with the name of the operation that failed.
// The original error stays reachable through errors.Is and errors.As.
func NewError(trace string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", trace, err)
}
