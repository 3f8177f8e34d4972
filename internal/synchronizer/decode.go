package synchronizer

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ND68/TipJar/internal/contract"
	"github.com/ND68/TipJar/internal/domain/model"
)

// ErrLengthMismatch is returned when the parallel arrays of a read disagree in length.
var ErrLengthMismatch = errors.New("parallel array length mismatch")

// DecodeTips zips getTipHistory's parallel arrays into records ordered by
// timestamp descending. Equal timestamps keep their on-chain order.
func DecodeTips(h *contract.TipHistory) ([]model.TipRecord, error) {
	if h == nil {
		return []model.TipRecord{}, nil
	}
	n := len(h.Senders)
	if len(h.Amounts) != n || len(h.Messages) != n || len(h.Names) != n || len(h.Timestamps) != n {
		return nil, fmt.Errorf("tip history: %w (senders=%d amounts=%d messages=%d names=%d timestamps=%d)",
			ErrLengthMismatch, n, len(h.Amounts), len(h.Messages), len(h.Names), len(h.Timestamps))
	}

	tips := make([]model.TipRecord, n)
	for i := 0; i < n; i++ {
		ts := h.Timestamps[i]
		if ts == nil || !ts.IsInt64() || ts.Sign() < 0 {
			return nil, fmt.Errorf("tip history: timestamp %d out of range: %v", i, ts)
		}
		tips[i] = model.TipRecord{
			Sender:    h.Senders[i],
			Nickname:  h.Names[i],
			Message:   h.Messages[i],
			Amount:    amountOrZero(h.Amounts[i]),
			Timestamp: ts.Int64(),
		}
	}
	sort.SliceStable(tips, func(i, j int) bool {
		return tips[i].Timestamp > tips[j].Timestamp
	})
	return tips, nil
}

// DecodeContributors zips getContributors' parallel arrays into records
// ordered by total descending, then address ascending.
func DecodeContributors(c *contract.Contributors) ([]model.ContributorRecord, error) {
	if c == nil {
		return []model.ContributorRecord{}, nil
	}
	n := len(c.Addresses)
	if len(c.Amounts) != n || len(c.Names) != n {
		return nil, fmt.Errorf("contributors: %w (addresses=%d amounts=%d names=%d)",
			ErrLengthMismatch, n, len(c.Amounts), len(c.Names))
	}

	out := make([]model.ContributorRecord, n)
	for i := 0; i < n; i++ {
		out[i] = model.ContributorRecord{
			Address:     c.Addresses[i],
			Nickname:    c.Names[i],
			TotalAmount: amountOrZero(c.Amounts[i]),
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if cmp := out[i].TotalAmount.Cmp(out[j].TotalAmount); cmp != 0 {
			return cmp > 0
		}
		return bytes.Compare(out[i].Address.Bytes(), out[j].Address.Bytes()) < 0
	})
	return out, nil
}

func amountOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
