package model

import (
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnapshotView(t *testing.T) {
	alice := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	refreshed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	snap := SyncSnapshot{
		Jar: common.HexToAddress("0x1000000000000000000000000000000000000001"),
		Tips: []TipRecord{
			{Sender: alice, Nickname: "alice", Message: "gm", Amount: big.NewInt(1_500_000_000_000_000_000), Timestamp: 1700000000},
			{Sender: bob, Amount: nil, Timestamp: 1690000000},
		},
		Contributors: []ContributorRecord{
			{Address: alice, Nickname: "alice", TotalAmount: big.NewInt(1_500_000_000_000_000_000)},
			{Address: bob},
		},
		LastRefreshedAt: refreshed,
	}

	v := NewSnapshotView(snap)
	require.Len(t, v.Tips, 2)
	assert.Equal(t, "alice", v.Tips[0].DisplayName)
	assert.Equal(t, "1500000000000000000", v.Tips[0].AmountWei)
	assert.Equal(t, "1.500", v.Tips[0].AmountEth)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), v.Tips[0].Timestamp)
	assert.Equal(t, ShortAddress(bob), v.Tips[1].DisplayName)
	assert.Equal(t, "0", v.Tips[1].AmountWei)

	require.Len(t, v.Contributors, 2)
	assert.Equal(t, 1, v.Contributors[0].Rank)
	assert.Equal(t, 2, v.Contributors[1].Rank)
	assert.Equal(t, "0", v.Contributors[1].TotalWei)

	require.NotNil(t, v.LastRefreshedAt)
	assert.Equal(t, refreshed, *v.LastRefreshedAt)
}

func TestNewSnapshotView_Empty(t *testing.T) {
	v := NewSnapshotView(SyncSnapshot{IsRefreshing: true})
	assert.Nil(t, v.LastRefreshedAt)
	assert.True(t, v.IsRefreshing)

	raw, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"tips":[]`)
	assert.NotContains(t, string(raw), "last_refreshed_at")
}
