package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TipRecord is one historical tip read from a jar.
type TipRecord struct {
	Sender    common.Address
	Nickname  string
	Message   string
	Amount    *big.Int // wei
	Timestamp int64    // unix seconds
}

// ContributorRecord aggregates every tip sent by one account.
type ContributorRecord struct {
	Address     common.Address
	Nickname    string
	TotalAmount *big.Int // wei
}

// SyncSnapshot is the synchronizer's published view of a jar. A snapshot is
// never mutated after publication; Clone hands out independent copies.
type SyncSnapshot struct {
	Jar             common.Address
	Tips            []TipRecord
	Contributors    []ContributorRecord
	LastRefreshedAt time.Time
	IsRefreshing    bool
}

// HasData reports whether at least one successful refresh populated the snapshot.
func (s SyncSnapshot) HasData() bool {
	return !s.LastRefreshedAt.IsZero()
}

// Clone returns a deep copy so callers can't reach the owner's slices or amounts.
func (s SyncSnapshot) Clone() SyncSnapshot {
	out := s
	if s.Tips != nil {
		out.Tips = make([]TipRecord, len(s.Tips))
		for i, tip := range s.Tips {
			tip.Amount = cloneAmount(tip.Amount)
			out.Tips[i] = tip
		}
	}
	if s.Contributors != nil {
		out.Contributors = make([]ContributorRecord, len(s.Contributors))
		for i, c := range s.Contributors {
			c.TotalAmount = cloneAmount(c.TotalAmount)
			out.Contributors[i] = c
		}
	}
	return out
}

// TopContributors returns at most n leaderboard entries. n <= 0 returns all.
func (s SyncSnapshot) TopContributors(n int) []ContributorRecord {
	if n <= 0 || n >= len(s.Contributors) {
		return s.Contributors
	}
	return s.Contributors[:n]
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
