package state

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
)

// Key layout. Every record class gets its own prefix so the flat store reads
// like a namespaced table.
var (
	prefixEpoch         = []byte("accrual/epoch/")
	prefixAccountEpoch  = []byte("accrual/account/")
	keyGlobalCursor     = []byte("accrual/global-cursor")
	prefixAccountCursor = []byte("accrual/account-cursor/")
	keyDistribution     = []byte("sidepool/distribution")
	prefixLastClaimed   = []byte("sidepool/last-claimed/")
	prefixBalance       = []byte("bank/balance/")
	prefixShareBalance  = []byte("bank/shares/")
)

func indexSuffix(index uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, index)
	return buf
}

func epochKey(index uint64) []byte {
	return append(append([]byte{}, prefixEpoch...), indexSuffix(index)...)
}

func accountEpochKey(addr common.Address, index uint64) []byte {
	key := append(append([]byte{}, prefixAccountEpoch...), addr.Bytes()...)
	return append(key, indexSuffix(index)...)
}

func accountCursorKey(addr common.Address) []byte {
	return append(append([]byte{}, prefixAccountCursor...), addr.Bytes()...)
}

func lastClaimedKey(addr common.Address) []byte {
	return append(append([]byte{}, prefixLastClaimed...), addr.Bytes()...)
}

func balanceKey(addr common.Address) []byte {
	return append(append([]byte{}, prefixBalance...), addr.Bytes()...)
}

func shareBalanceKey(addr common.Address) []byte {
	return append(append([]byte{}, prefixShareBalance...), addr.Bytes()...)
}
