package voting

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	alice = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b22")
)

func TestHistoricalLookup(t *testing.T) {
	l := NewLedger()
	if err := l.Record(alice, big.NewInt(100), 10); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := l.Record(alice, big.NewInt(250), 20); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := l.Record(bob, big.NewInt(50), 25); err != nil {
		t.Fatalf("record: %v", err)
	}

	cases := []struct {
		ts   uint64
		want int64
	}{
		{5, 0},
		{10, 100},
		{15, 100},
		{20, 250},
		{30, 250},
	}
	for _, tc := range cases {
		got, err := l.VotingPowerAt(alice, tc.ts)
		if err != nil {
			t.Fatalf("power at %d: %v", tc.ts, err)
		}
		if got.Cmp(big.NewInt(tc.want)) != 0 {
			t.Fatalf("power at %d: got %s want %d", tc.ts, got, tc.want)
		}
	}

	total, err := l.TotalVotingPowerAt(25)
	if err != nil {
		t.Fatalf("total at 25: %v", err)
	}
	if total.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("total at 25: got %s want 300", total)
	}
	total, err = l.TotalVotingPowerAt(15)
	if err != nil {
		t.Fatalf("total at 15: %v", err)
	}
	if total.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("total at 15: got %s want 100", total)
	}
}

func TestRecordRejectsBackwardsTimestamps(t *testing.T) {
	l := NewLedger()
	if err := l.Record(alice, big.NewInt(100), 50); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := l.Record(alice, big.NewInt(200), 40); !errors.Is(err, ErrStaleRecord) {
		t.Fatalf("expected ErrStaleRecord, got %v", err)
	}
	// The total series is shared, so another account cannot rewind it
	// either.
	if err := l.Record(bob, big.NewInt(5), 40); !errors.Is(err, ErrStaleRecord) {
		t.Fatalf("expected ErrStaleRecord, got %v", err)
	}
	if err := l.Record(alice, big.NewInt(200), 50); err != nil {
		t.Fatalf("same-timestamp record: %v", err)
	}
}

func TestTotalTracksReplacements(t *testing.T) {
	l := NewLedger()
	if err := l.Record(alice, big.NewInt(100), 10); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := l.Record(bob, big.NewInt(40), 10); err != nil {
		t.Fatalf("record: %v", err)
	}
	// Replacing alice's power must adjust the total by the delta, not
	// double count.
	if err := l.Record(alice, big.NewInt(60), 20); err != nil {
		t.Fatalf("record: %v", err)
	}
	total, err := l.TotalVotingPowerAt(20)
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if total.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("total after replacement: got %s want 100", total)
	}
}
