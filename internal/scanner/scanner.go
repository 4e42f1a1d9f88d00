package scanner

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"positionscope/internal/model"
)

// Result collects what one scan produced. Every discovered position lands in
// exactly one of the two slices.
type Result struct {
	Positions []model.ValuedPosition
	Skipped   []model.SkippedPosition
}

func (r *Result) merge(other Result) {
	r.Positions = append(r.Positions, other.Positions...)
	r.Skipped = append(r.Skipped, other.Skipped...)
}

// WalletScanner scans one wallet on one protocol.
type WalletScanner interface {
	Protocol() model.Protocol
	Scan(ctx context.Context, wallet string) (Result, error)
}

// ScanWallets runs every scanner over every wallet with at most workers
// concurrent scans. A failed wallet scan does not stop the others; the
// joined failures come back alongside the merged result.
func ScanWallets(ctx context.Context, scanners []WalletScanner, wallets []string, workers int) (Result, error) {
	if workers <= 0 {
		workers = 1
	}

	var (
		mu     sync.Mutex
		merged Result
		errs   []error
	)

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for _, s := range scanners {
		for _, wallet := range wallets {
			s, wallet := s, wallet
			group.Go(func() error {
				result, err := s.Scan(ctx, wallet)
				mu.Lock()
				defer mu.Unlock()
				merged.merge(result)
				if err != nil {
					errs = append(errs, err)
				}
				return nil
			})
		}
	}

	if err := group.Wait(); err != nil {
		errs = append(errs, err)
	}
	return merged, errors.Join(errs...)
}

// skipReason maps a per-position failure to its reason code.
func skipReason(err error) model.ReasonCode {
	var decodeErr *model.DecodeError
	var rangeErr *model.RangeError
	var mathErr *model.MathError
	var mismatchErr *model.ProtocolMismatchError
	var valErr *model.ValuationError

	switch {
	case errors.As(err, &decodeErr):
		return model.ReasonDecodeError
	case errors.As(err, &rangeErr), errors.As(err, &mathErr):
		return model.ReasonMathError
	case errors.As(err, &mismatchErr):
		return model.ReasonPoolMismatch
	case errors.As(err, &valErr):
		return model.ReasonValuationError
	default:
		return model.ReasonDataUnavailable
	}
}
