// Package clock provides the production Clock implementation.
package clock

import "time"

// System is the production interfaces.Clock: wall-clock UTC time.
type System struct{}

// Now returns the current UTC time.
func (System) Now() time.Time { return time.Now().UTC() }
