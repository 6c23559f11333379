package doph

import "errors"

// ErrDegenerate is returned by New when K*L exceeds the output range or the
// derived bin size underflows to zero.
var ErrDegenerate = errors.New("doph: degenerate hash family parameters")
