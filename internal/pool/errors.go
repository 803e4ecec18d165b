package pool

import (
	"fmt"
	"strings"
)

// FetchError reports a non-2xx response or a transport failure from the
// pool's web endpoints. Recoverable: the current cycle aborts and the fetch
// is retried on the next one.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports malformed amount or timestamp text. Repeated
// occurrences usually mean the remote format changed.
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %q: %v", e.Input, e.Err)
	}
	return fmt.Sprintf("parse %q: invalid value", e.Input)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IncompleteDataError means the extractor ran but one or more expected
// dashboard labels were missing. This is surfaced rather than defaulted to
// zero: a fabricated zero would corrupt the snapshot ledger with
// plausible-looking data.
type IncompleteDataError struct {
	Missing []string
}

func (e *IncompleteDataError) Error() string {
	return fmt.Sprintf("dashboard labels missing: %s", strings.Join(e.Missing, ", "))
}
