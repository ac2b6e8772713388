package address

import "fmt"

// AddressFormatError reports a map link that does not fit the expected grammar.
// Parsing is all-or-nothing: no partial address accompanies this error.
type AddressFormatError struct {
	Input  string
	Reason string
}

func (e *AddressFormatError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("address: malformed map link %q", e.Input)
	}
	return fmt.Sprintf("address: malformed map link %q: %s", e.Input, e.Reason)
}

func formatError(input, reason string) *AddressFormatError {
	return &AddressFormatError{Input: input, Reason: reason}
}
