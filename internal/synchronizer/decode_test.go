package synchronizer

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/ND68/TipJar/internal/contract"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bigs(vals ...int64) []*big.Int {
	out := make([]*big.Int, len(vals))
	for i, v := range vals {
		out[i] = big.NewInt(v)
	}
	return out
}

func TestDecodeTips_TimestampDescendingStable(t *testing.T) {
	history := &contract.TipHistory{
		Senders:    []common.Address{common.HexToAddress("0x01"), common.HexToAddress("0x02"), common.HexToAddress("0x03"), common.HexToAddress("0x04")},
		Amounts:    bigs(1, 2, 3, 4),
		Messages:   []string{"idx0", "idx1", "idx2", "idx3"},
		Names:      []string{"a", "b", "", "d"},
		Timestamps: bigs(100, 300, 300, 50),
	}

	tips, err := DecodeTips(history)
	require.NoError(t, err)

	var order []string
	var stamps []int64
	for _, tip := range tips {
		order = append(order, tip.Message)
		stamps = append(stamps, tip.Timestamp)
	}
	assert.Equal(t, []string{"idx1", "idx2", "idx0", "idx3"}, order)
	assert.Equal(t, []int64{300, 300, 100, 50}, stamps)
	assert.Equal(t, common.HexToAddress("0x02"), tips[0].Sender)
	assert.Equal(t, "b", tips[0].Nickname)
	assert.Equal(t, int64(2), tips[0].Amount.Int64())
}

func TestDecodeTips_CopiesAmounts(t *testing.T) {
	amounts := bigs(7)
	tips, err := DecodeTips(&contract.TipHistory{
		Senders:    []common.Address{common.HexToAddress("0x01")},
		Amounts:    amounts,
		Messages:   []string{""},
		Names:      []string{""},
		Timestamps: bigs(1),
	})
	require.NoError(t, err)
	amounts[0].SetInt64(99)
	assert.Equal(t, int64(7), tips[0].Amount.Int64())
}

func TestDecodeTips_LengthMismatch(t *testing.T) {
	_, err := DecodeTips(&contract.TipHistory{
		Senders:    []common.Address{common.HexToAddress("0x01")},
		Amounts:    bigs(1, 2),
		Messages:   []string{"x"},
		Names:      []string{"y"},
		Timestamps: bigs(1),
	})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestDecodeTips_TimestampOutOfRange(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 80)
	_, err := DecodeTips(&contract.TipHistory{
		Senders:    []common.Address{common.HexToAddress("0x01")},
		Amounts:    bigs(1),
		Messages:   []string{""},
		Names:      []string{""},
		Timestamps: []*big.Int{huge},
	})
	assert.Error(t, err)
}

func TestDecodeTips_Empty(t *testing.T) {
	tips, err := DecodeTips(&contract.TipHistory{})
	require.NoError(t, err)
	assert.Empty(t, tips)

	tips, err = DecodeTips(nil)
	require.NoError(t, err)
	assert.NotNil(t, tips)
}

func TestDecodeContributors_DeterministicTies(t *testing.T) {
	addrs := []common.Address{
		common.HexToAddress("0x00000000000000000000000000000000000000c0"), // 5
		common.HexToAddress("0x00000000000000000000000000000000000000b0"), // 20
		common.HexToAddress("0x00000000000000000000000000000000000000a0"), // 20
		common.HexToAddress("0x00000000000000000000000000000000000000d0"), // 1
	}
	totals := []int64{5, 20, 20, 1}
	names := []string{"five", "twenty-b", "twenty-a", "one"}

	want := []string{"twenty-a", "twenty-b", "five", "one"}

	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 25; run++ {
		perm := rng.Perm(len(addrs))
		in := &contract.Contributors{}
		for _, i := range perm {
			in.Addresses = append(in.Addresses, addrs[i])
			in.Amounts = append(in.Amounts, big.NewInt(totals[i]))
			in.Names = append(in.Names, names[i])
		}

		out, err := DecodeContributors(in)
		require.NoError(t, err)

		var got []string
		for _, c := range out {
			got = append(got, c.Nickname)
		}
		assert.Equal(t, want, got, "run %d perm %v", run, perm)
	}
}

func TestDecodeContributors_LengthMismatch(t *testing.T) {
	_, err := DecodeContributors(&contract.Contributors{
		Addresses: []common.Address{common.HexToAddress("0x01")},
		Amounts:   bigs(1),
	})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}
