package events

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestNftStakedEventBatchType(t *testing.T) {
	staker := common.HexToAddress("0x00000000000000000000000000000000000000AA")
	single := NftStaked{Staker: staker, Cycle: 3, TokenIDs: []uint256.Int{*uint256.NewInt(7)}, Weights: []uint64{10}}
	if single.EventType() != TypeStakingNftStaked {
		t.Fatalf("unexpected type: %s", single.EventType())
	}
	batch := NftStaked{Staker: staker, Cycle: 3, TokenIDs: []uint256.Int{*uint256.NewInt(7), *uint256.NewInt(8)}, Weights: []uint64{10, 1}}
	evt := batch.Event()
	if evt.Type != TypeStakingNftsBatchStaked {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.Attributes["tokenIds"] != "7,8" || evt.Attributes["weight"] != "11" {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
	if evt.Attributes["staker"] != "0x00000000000000000000000000000000000000aa" {
		t.Fatalf("unexpected staker attr: %s", evt.Attributes["staker"])
	}
}

func TestRenderAndFanout(t *testing.T) {
	var got []string
	record := emitterFunc(func(evt Event) { got = append(got, evt.EventType()) })
	fan := Fanout{record, nil, NoopEmitter{}, record}
	fan.Emit(RewardsClaimed{Amount: big.NewInt(50), Periods: 2})
	if len(got) != 2 || got[0] != TypeStakingRewardsClaimed {
		t.Fatalf("unexpected deliveries: %v", got)
	}
	rendered, ok := Render(RewardsClaimed{Amount: big.NewInt(50), Periods: 2})
	if !ok {
		t.Fatalf("expected render")
	}
	if rendered.Attributes["amount"] != "50" || rendered.Attributes["periods"] != "2" {
		t.Fatalf("unexpected attrs: %+v", rendered.Attributes)
	}
	if _, ok := Render(emitterEvent{}); ok {
		t.Fatalf("expected plain event to be unrenderable")
	}
}

type emitterFunc func(Event)

func (f emitterFunc) Emit(evt Event) { f(evt) }

type emitterEvent struct{}

func (emitterEvent) EventType() string { return "test" }
