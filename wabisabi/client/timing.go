// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"sort"
	"time"

	"github.com/btcsuite/wabisabi/crypto/randomness"
)

// scheduleDates returns n random times in [start, end] in ascending
// order. The window is cut to maxDelay past start when maxDelay is
// positive.
func scheduleDates(rnd randomness.WasabiRandom, n int, start, end time.Time,
	maxDelay time.Duration) []time.Time {

	if maxDelay > 0 && end.Sub(start) > maxDelay {
		end = start.Add(maxDelay)
	}
	span := end.Sub(start) / time.Millisecond

	dates := make([]time.Time, n)
	for i := range dates {
		if span <= 0 {
			dates[i] = start
			continue
		}

		offset := time.Duration(rnd.GetInt(0, int(span)+1))
		dates[i] = start.Add(offset * time.Millisecond)
	}
	sort.Slice(dates, func(i, j int) bool {
		return dates[i].Before(dates[j])
	})

	return dates
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil

	case <-ctx.Done():
		return ctx.Err()
	}
}
