package staking

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"

	nativestaking "deltastake/native/staking"
)

var (
	poolKey            = []byte("stk/pool")
	schedulePrefix     = []byte("stk/sched/")
	globalPrefix       = []byte("stk/global/")
	globalLenKey       = []byte("stk/global/len")
	stakerPrefix       = []byte("stk/staker/")
	stakerHistPrefix   = []byte("stk/shist/")
	tokenPrefix        = []byte("stk/token/")
	lostCyclePrefix    = []byte("stk/lost/")
	historyLenSuffix   = []byte("len")
	historyIndexLength = 8
)

func uint64Key(prefix []byte, v uint64) []byte {
	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[len(prefix):], v)
	return buf
}

func scheduleKey(period uint64) []byte { return uint64Key(schedulePrefix, period) }

func globalEntryKey(index int) []byte { return uint64Key(globalPrefix, uint64(index)) }

func stakerKey(addr common.Address) []byte {
	return append(append([]byte(nil), stakerPrefix...), addr.Bytes()...)
}

func stakerHistoryPrefix(addr common.Address) []byte {
	buf := append(append([]byte(nil), stakerHistPrefix...), addr.Bytes()...)
	return append(buf, '/')
}

func stakerHistoryEntryKey(addr common.Address, index int) []byte {
	return uint64Key(stakerHistoryPrefix(addr), uint64(index))
}

func stakerHistoryLenKey(addr common.Address) []byte {
	return append(stakerHistoryPrefix(addr), historyLenSuffix...)
}

func tokenKey(ref nativestaking.TokenRef) []byte {
	id := ref.ID.Bytes32()
	buf := append(append([]byte(nil), tokenPrefix...), ref.Contract.Bytes()...)
	return append(buf, id[:]...)
}

func lostCycleKey(cycle uint64) []byte { return uint64Key(lostCyclePrefix, cycle) }
