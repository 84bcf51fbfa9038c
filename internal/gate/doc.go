// Package gate decides whether a submission may go out now.
//
// On first use it synthesizes a last-submit timestamp somewhere between 0.2
// and 1.2 intervals in the past; afterwards an attempt is admitted only once
// strictly more than the minimum submit interval has elapsed.
package gate
