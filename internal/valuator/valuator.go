package valuator

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"positionscope/internal/clmm"
	"positionscope/internal/fees"
	"positionscope/internal/model"
)

// PriceLookup resolves token USD quotes. Satisfied by pricing.Cache.
type PriceLookup interface {
	GetPrice(ctx context.Context, tokenID string) (model.PriceQuote, error)
}

// Valuator reconstructs reserves and USD value for decoded positions.
type Valuator struct {
	fees   fees.Strategy
	logger *zap.Logger
}

// New builds a valuator with the given fee strategy.
func New(feeStrategy fees.Strategy, logger *zap.Logger) *Valuator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Valuator{fees: feeStrategy, logger: logger}
}

// ValuePosition values one position against its pool. Unavailable prices
// degrade the affected legs to unknown and mark the record partial; they are
// never silently valued at zero. Errors mean the position produced no record
// at all.
func (v *Valuator) ValuePosition(
	ctx context.Context,
	protocol model.Protocol,
	chainID model.Chain,
	pos model.PositionState,
	pool model.PoolState,
	prices PriceLookup,
) (model.ValuedPosition, error) {
	if pos.PoolID != "" && pos.PoolID != pool.PoolID {
		return model.ValuedPosition{}, &model.ProtocolMismatchError{PositionPool: pos.PoolID, FetchedPool: pool.PoolID}
	}
	if pool.SqrtPriceX96 == nil {
		return model.ValuedPosition{}, &model.ValuationError{Reason: "missing pool sqrt price"}
	}

	amount0Raw, amount1Raw, err := clmm.AmountsFromLiquidity(pos.Liquidity, pool.SqrtPriceX96, pos.TickLower, pos.TickUpper)
	if err != nil {
		return model.ValuedPosition{}, err
	}
	amount0 := decimal.NewFromBigInt(amount0Raw, -int32(pool.Decimals0))
	amount1 := decimal.NewFromBigInt(amount1Raw, -int32(pool.Decimals1))

	quote0 := v.lookupQuote(ctx, prices, pool.Token0)
	quote1 := v.lookupQuote(ctx, prices, pool.Token1)

	token0Value := valueLeg(amount0, quote0)
	token1Value := valueLeg(amount1, quote1)

	feeAmounts, err := v.fees.Resolve(ctx, pos, pool)
	if err != nil {
		v.logger.Warn("fee resolution failed",
			zap.String("position", pos.PositionID),
			zap.Error(err))
	}

	fee0 := decimal.Zero
	fee1 := decimal.Zero
	feeValue := model.UnknownUSD()
	feePartial := true
	if feeAmounts.Source != model.FeeSourceUnknown && feeAmounts.Owed0 != nil && feeAmounts.Owed1 != nil {
		fee0 = decimal.NewFromBigInt(feeAmounts.Owed0, -int32(pool.Decimals0))
		fee1 = decimal.NewFromBigInt(feeAmounts.Owed1, -int32(pool.Decimals1))
		feeValue, feePartial = model.SumUSD(valueLeg(fee0, quote0), valueLeg(fee1, quote1))
	}

	total, totalPartial := model.SumUSD(token0Value, token1Value, feeValue)
	partial := totalPartial || feePartial || !token0Value.Known || !token1Value.Known

	record := model.ValuedPosition{
		PositionID:     pos.PositionID,
		PoolID:         pool.PoolID,
		Protocol:       protocol,
		Chain:          chainID,
		Amount0:        amount0,
		Amount1:        amount1,
		Token0ValueUSD: token0Value,
		Token1ValueUSD: token1Value,
		Fee0Amount:     fee0,
		Fee1Amount:     fee1,
		FeeValueUSD:    feeValue,
		FeeSource:      feeAmounts.Source,
		InRange:        clmm.TickInRange(pool.TickCurrent, pos.TickLower, pos.TickUpper),
		ValueUSD:       total,
		Partial:        partial,
		AsOf:           time.Now().UTC(),
	}

	if current, err := clmm.PriceFromSqrtPriceX96(pool.SqrtPriceX96, pool.Decimals0, pool.Decimals1); err == nil {
		record.CurrentPrice = current.String()
	}
	if lower, err := clmm.PriceFromTick(pos.TickLower, pool.Decimals0, pool.Decimals1); err == nil {
		record.PriceLower = lower.String()
	}
	if upper, err := clmm.PriceFromTick(pos.TickUpper, pool.Decimals0, pool.Decimals1); err == nil {
		record.PriceUpper = upper.String()
	}
	return record, nil
}

// lookupQuote degrades lookup failures to an explicit unavailable quote.
func (v *Valuator) lookupQuote(ctx context.Context, prices PriceLookup, tokenID string) model.PriceQuote {
	quote, err := prices.GetPrice(ctx, tokenID)
	if err != nil {
		v.logger.Warn("price lookup failed",
			zap.String("token", tokenID),
			zap.Error(err))
		return model.UnavailableQuote(tokenID)
	}
	return quote
}

// valueLeg prices one token amount with that token's own quote. Legs are
// never cross-priced through the other token.
func valueLeg(amount decimal.Decimal, quote model.PriceQuote) model.USDValue {
	if !quote.Available {
		return model.UnknownUSD()
	}
	return model.KnownUSD(amount.Mul(quote.USD))
}
