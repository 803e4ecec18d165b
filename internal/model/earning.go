package model

import (
	"fmt"
	"time"
)

// BlockEarning is one mining reward event credited for a found block.
// BlockHash is the natural key: the store holds at most one row per hash.
type BlockEarning struct {
	Time           int64  `json:"time"`
	BlockHash      string `json:"block_hash"`
	EarnedSats     int64  `json:"earned_sats"`
	PoolFee        int64  `json:"pool_fee"`
	TimeAddedFirst int64  `json:"time_added_first,omitempty"`
	TimeUpdated    int64  `json:"time_updated,omitempty"`
}

// String renders the earning for log output.
func (e BlockEarning) String() string {
	return fmt.Sprintf("%s %s %d %d",
		time.Unix(e.Time, 0).UTC().Format(time.RFC3339), e.BlockHash, e.EarnedSats, e.PoolFee)
}
