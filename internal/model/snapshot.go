package model

import (
	"fmt"
	"time"
)

// EarningSnapshot is one point-in-time balance reading from the pool dashboard.
// Snapshots are append-only and never revised once stored.
type EarningSnapshot struct {
	Time            int64 `json:"time"`
	Estimated       int64 `json:"estimated"`
	AccountedUnpaid int64 `json:"accounted_unpaid"`
	AccountedPaid   int64 `json:"accounted_paid"`
}

// TotalAccounted returns paid plus unpaid accounted satoshis.
func (s EarningSnapshot) TotalAccounted() int64 {
	return s.AccountedPaid + s.AccountedUnpaid
}

// Total returns accounted plus estimated satoshis.
func (s EarningSnapshot) Total() int64 {
	return s.TotalAccounted() + s.Estimated
}

// String renders the snapshot for log output.
func (s EarningSnapshot) String() string {
	return fmt.Sprintf("acctd paid: %d  acctd unpaid: %d  estimated: %d  total acctd: %d  total: %d  time: %s",
		s.AccountedPaid, s.AccountedUnpaid, s.Estimated, s.TotalAccounted(), s.Total(),
		time.Unix(s.Time, 0).UTC().Format(time.RFC3339))
}

// SnapshotTotals is the condensed (total, paid) pair keyed by snapshot time
// that reporting dumps use.
type SnapshotTotals struct {
	Total int64 `json:"total"`
	Paid  int64 `json:"paid"`
}
