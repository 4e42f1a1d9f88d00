package fees

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"positionscope/internal/chain"
	"positionscope/internal/decoder"
	"positionscope/internal/model"
)

// ContractCaller is the single-call surface SimulatedCollect needs from an
// EVM client.
type ContractCaller interface {
	Call(ctx context.Context, req chain.CallRequest) ([]byte, error)
}

var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// SimulatedCollect resolves fees by simulating collect(tokenId, owner,
// max, max) on the position manager as the position's owner. The position
// account itself only tracks a stale checkpoint; the simulated call returns
// what a real collect would pay out now.
type SimulatedCollect struct {
	caller     ContractCaller
	manager    common.Address
	managerABI abi.ABI
}

// NewSimulatedCollect builds the strategy against one position manager.
func NewSimulatedCollect(caller ContractCaller, manager common.Address) (*SimulatedCollect, error) {
	managerABI, err := decoder.PositionManagerABI()
	if err != nil {
		return nil, err
	}
	return &SimulatedCollect{caller: caller, manager: manager, managerABI: managerABI}, nil
}

func (*SimulatedCollect) Name() string { return model.FeeSourceSimulatedMutation }

// Resolve simulates the collect. Any failure returns Source "unknown"
// alongside the error so the caller can log and keep valuing the position.
func (s *SimulatedCollect) Resolve(ctx context.Context, pos model.PositionState, _ model.PoolState) (model.FeeAmounts, error) {
	unknown := model.FeeAmounts{Source: model.FeeSourceUnknown}

	tokenID, ok := new(big.Int).SetString(pos.PositionID, 10)
	if !ok {
		return unknown, fmt.Errorf("position id %q is not a token id", pos.PositionID)
	}

	owner, err := s.ownerOf(ctx, tokenID)
	if err != nil {
		return unknown, err
	}

	callData, err := s.managerABI.Pack("collect", struct {
		TokenId    *big.Int
		Recipient  common.Address
		Amount0Max *big.Int
		Amount1Max *big.Int
	}{tokenID, owner, maxUint128, maxUint128})
	if err != nil {
		return unknown, fmt.Errorf("pack collect: %w", err)
	}

	out, err := s.caller.Call(ctx, chain.CallRequest{To: s.manager, From: owner, Data: callData})
	if err != nil {
		return unknown, fmt.Errorf("simulate collect %s: %w", pos.PositionID, err)
	}

	values, err := s.managerABI.Unpack("collect", out)
	if err != nil || len(values) != 2 {
		return unknown, fmt.Errorf("unpack collect %s: %w", pos.PositionID, err)
	}
	owed0, ok0 := values[0].(*big.Int)
	owed1, ok1 := values[1].(*big.Int)
	if !ok0 || !ok1 {
		return unknown, fmt.Errorf("unexpected collect return types %T/%T", values[0], values[1])
	}

	return model.FeeAmounts{Owed0: owed0, Owed1: owed1, Source: model.FeeSourceSimulatedMutation}, nil
}

func (s *SimulatedCollect) ownerOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	callData, err := s.managerABI.Pack("ownerOf", tokenID)
	if err != nil {
		return common.Address{}, fmt.Errorf("pack ownerOf: %w", err)
	}
	out, err := s.caller.Call(ctx, chain.CallRequest{To: s.manager, Data: callData})
	if err != nil {
		return common.Address{}, fmt.Errorf("ownerOf %s: %w", tokenID, err)
	}
	values, err := s.managerABI.Unpack("ownerOf", out)
	if err != nil || len(values) != 1 {
		return common.Address{}, fmt.Errorf("unpack ownerOf: %w", err)
	}
	owner, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected ownerOf return type %T", values[0])
	}
	return owner, nil
}
