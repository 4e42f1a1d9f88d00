package fees

import (
	"context"

	"positionscope/internal/model"
)

// Strategy resolves the uncollected fees of one position. A failed
// resolution yields Source "unknown" with nil amounts; it never fabricates a
// zero.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, pos model.PositionState, pool model.PoolState) (model.FeeAmounts, error)
}

// DirectRead reports the owed amounts already present in the decoded
// position state. Used for protocols whose accounts track fees inline.
type DirectRead struct{}

func NewDirectRead() *DirectRead { return &DirectRead{} }

func (*DirectRead) Name() string { return model.FeeSourceDirectRead }

func (*DirectRead) Resolve(_ context.Context, pos model.PositionState, _ model.PoolState) (model.FeeAmounts, error) {
	if pos.Owed0Raw == nil || pos.Owed1Raw == nil {
		return model.FeeAmounts{Source: model.FeeSourceUnknown}, nil
	}
	return model.FeeAmounts{
		Owed0:  pos.Owed0Raw,
		Owed1:  pos.Owed1Raw,
		Source: model.FeeSourceDirectRead,
	}, nil
}
