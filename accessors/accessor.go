// Package accessors provides ncd.ReadAccessor implementations over a local
// seekable file and over an HTTP byte-range endpoint.
package accessors

import (
	"context"
	"fmt"
)

// ErrBadRange is returned when a backend could not satisfy a read for the
// exact byte range requested.
var ErrBadRange = fmt.Errorf("accessors: could not satisfy read range")

// ctxErr returns ctx.Err(), or nil if ctx is not done.
func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
