package model

import (
	"math/big"
	"time"
)

const displayDecimals = 3

// TipView is the JSON rendering of a TipRecord shared by the HTTP API and
// the snapshot publishers.
type TipView struct {
	Sender      string    `json:"sender"`
	DisplayName string    `json:"display_name"`
	Message     string    `json:"message"`
	AmountWei   string    `json:"amount_wei"`
	AmountEth   string    `json:"amount_eth"`
	Timestamp   time.Time `json:"timestamp"`
}

type ContributorView struct {
	Rank        int    `json:"rank"`
	Address     string `json:"address"`
	DisplayName string `json:"display_name"`
	TotalWei    string `json:"total_wei"`
	TotalEth    string `json:"total_eth"`
}

type SnapshotView struct {
	Jar             string            `json:"jar"`
	Tips            []TipView         `json:"tips"`
	Contributors    []ContributorView `json:"contributors"`
	LastRefreshedAt *time.Time        `json:"last_refreshed_at,omitempty"`
	IsRefreshing    bool              `json:"is_refreshing"`
}

func NewTipViews(tips []TipRecord) []TipView {
	out := make([]TipView, 0, len(tips))
	for _, tip := range tips {
		out = append(out, TipView{
			Sender:      tip.Sender.Hex(),
			DisplayName: DisplayName(tip.Nickname, tip.Sender),
			Message:     tip.Message,
			AmountWei:   amountString(tip.Amount),
			AmountEth:   FormatEther(tip.Amount, displayDecimals),
			Timestamp:   time.Unix(tip.Timestamp, 0).UTC(),
		})
	}
	return out
}

func NewContributorViews(contributors []ContributorRecord) []ContributorView {
	out := make([]ContributorView, 0, len(contributors))
	for i, c := range contributors {
		out = append(out, ContributorView{
			Rank:        i + 1,
			Address:     c.Address.Hex(),
			DisplayName: DisplayName(c.Nickname, c.Address),
			TotalWei:    amountString(c.TotalAmount),
			TotalEth:    FormatEther(c.TotalAmount, displayDecimals),
		})
	}
	return out
}

// NewSnapshotView renders a snapshot. A snapshot that was never refreshed
// has no last_refreshed_at.
func NewSnapshotView(s SyncSnapshot) SnapshotView {
	v := SnapshotView{
		Jar:          s.Jar.Hex(),
		Tips:         NewTipViews(s.Tips),
		Contributors: NewContributorViews(s.Contributors),
		IsRefreshing: s.IsRefreshing,
	}
	if s.HasData() {
		at := s.LastRefreshedAt.UTC()
		v.LastRefreshedAt = &at
	}
	return v
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
