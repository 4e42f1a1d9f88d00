package fees

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"positionscope/internal/chain"
	"positionscope/internal/decoder"
	"positionscope/internal/model"
)

func TestDirectReadReportsOwedAmounts(t *testing.T) {
	pos := model.PositionState{
		PositionID: "pda1",
		Owed0Raw:   big.NewInt(100),
		Owed1Raw:   big.NewInt(0),
	}

	amounts, err := NewDirectRead().Resolve(context.Background(), pos, model.PoolState{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if amounts.Source != model.FeeSourceDirectRead {
		t.Fatalf("source = %s", amounts.Source)
	}
	if amounts.Owed0.Int64() != 100 {
		t.Fatalf("owed0 = %s", amounts.Owed0)
	}
	// Zero is a real amount, not unknown.
	if amounts.Owed1 == nil || amounts.Owed1.Sign() != 0 {
		t.Fatalf("owed1 = %v, want present zero", amounts.Owed1)
	}
}

func TestDirectReadMissingAmountsIsUnknown(t *testing.T) {
	amounts, err := NewDirectRead().Resolve(context.Background(), model.PositionState{PositionID: "pda1"}, model.PoolState{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if amounts.Source != model.FeeSourceUnknown {
		t.Fatalf("source = %s, want unknown", amounts.Source)
	}
	if amounts.Owed0 != nil || amounts.Owed1 != nil {
		t.Fatalf("unknown fees must not carry amounts")
	}
}

// fakeCaller answers ownerOf and collect calls by method selector.
type fakeCaller struct {
	owner      common.Address
	collect0   *big.Int
	collect1   *big.Int
	collectErr error
	lastFrom   common.Address
}

func (f *fakeCaller) Call(_ context.Context, req chain.CallRequest) ([]byte, error) {
	managerABI, err := decoder.PositionManagerABI()
	if err != nil {
		return nil, err
	}
	if len(req.Data) < 4 {
		return nil, fmt.Errorf("missing selector")
	}
	method, err := managerABI.MethodById(req.Data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "ownerOf":
		return method.Outputs.Pack(f.owner)
	case "collect":
		f.lastFrom = req.From
		if f.collectErr != nil {
			return nil, f.collectErr
		}
		return method.Outputs.Pack(f.collect0, f.collect1)
	default:
		return nil, fmt.Errorf("unexpected method %s", method.Name)
	}
}

func TestSimulatedCollectResolvesOwedAmounts(t *testing.T) {
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	caller := &fakeCaller{owner: owner, collect0: big.NewInt(42), collect1: big.NewInt(7)}

	strategy, err := NewSimulatedCollect(caller, common.HexToAddress("0xC36442b4a4522E871399CD717aBDD847Ab11FE88"))
	if err != nil {
		t.Fatalf("new strategy: %v", err)
	}

	amounts, err := strategy.Resolve(context.Background(), model.PositionState{PositionID: "12345"}, model.PoolState{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if amounts.Source != model.FeeSourceSimulatedMutation {
		t.Fatalf("source = %s", amounts.Source)
	}
	if amounts.Owed0.Int64() != 42 || amounts.Owed1.Int64() != 7 {
		t.Fatalf("owed = %s / %s", amounts.Owed0, amounts.Owed1)
	}
	// The simulation must run as the position owner or collect reverts.
	if caller.lastFrom != owner {
		t.Fatalf("collect simulated from %s, want %s", caller.lastFrom.Hex(), owner.Hex())
	}
}

func TestSimulatedCollectFailureIsUnknown(t *testing.T) {
	caller := &fakeCaller{
		owner:      common.HexToAddress("0x1111111111111111111111111111111111111111"),
		collectErr: fmt.Errorf("execution reverted"),
	}

	strategy, err := NewSimulatedCollect(caller, common.Address{})
	if err != nil {
		t.Fatalf("new strategy: %v", err)
	}

	amounts, err := strategy.Resolve(context.Background(), model.PositionState{PositionID: "12345"}, model.PoolState{})
	if err == nil {
		t.Fatalf("expected error")
	}
	if amounts.Source != model.FeeSourceUnknown {
		t.Fatalf("source = %s, want unknown", amounts.Source)
	}
	if amounts.Owed0 != nil || amounts.Owed1 != nil {
		t.Fatalf("failed resolution must not fabricate amounts")
	}
}
