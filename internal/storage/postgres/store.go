package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"positionscope/internal/model"
)

// Store provides Postgres persistence for scan output.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// UpsertPositions inserts or updates valued positions. Unknown USD values
// are stored as NULL, never as zero.
func (s *Store) UpsertPositions(ctx context.Context, positions []model.ValuedPosition) error {
	if len(positions) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range positions {
		batch.Queue(`
			INSERT INTO wallet_positions (
				protocol, chain, position_id, pool_id,
				amount0, amount1, token0_value_usd, token1_value_usd,
				fee0_amount, fee1_amount, fee_value_usd, fee_source,
				in_range, value_usd, partial, as_of,
				current_price, price_lower, price_upper,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,now(),now())
			ON CONFLICT (protocol, position_id)
			DO UPDATE SET
				pool_id = EXCLUDED.pool_id,
				amount0 = EXCLUDED.amount0,
				amount1 = EXCLUDED.amount1,
				token0_value_usd = EXCLUDED.token0_value_usd,
				token1_value_usd = EXCLUDED.token1_value_usd,
				fee0_amount = EXCLUDED.fee0_amount,
				fee1_amount = EXCLUDED.fee1_amount,
				fee_value_usd = EXCLUDED.fee_value_usd,
				fee_source = EXCLUDED.fee_source,
				in_range = EXCLUDED.in_range,
				value_usd = EXCLUDED.value_usd,
				partial = EXCLUDED.partial,
				as_of = EXCLUDED.as_of,
				current_price = EXCLUDED.current_price,
				price_lower = EXCLUDED.price_lower,
				price_upper = EXCLUDED.price_upper,
				updated_at = now()
		`,
			string(p.Protocol),
			string(p.Chain),
			p.PositionID,
			p.PoolID,
			p.Amount0.String(),
			p.Amount1.String(),
			usdOrNull(p.Token0ValueUSD),
			usdOrNull(p.Token1ValueUSD),
			p.Fee0Amount.String(),
			p.Fee1Amount.String(),
			usdOrNull(p.FeeValueUSD),
			p.FeeSource,
			p.InRange,
			usdOrNull(p.ValueUSD),
			p.Partial,
			p.AsOf,
			p.CurrentPrice,
			p.PriceLower,
			p.PriceUpper,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range positions {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// InsertSkipped records positions that produced no valuation.
func (s *Store) InsertSkipped(ctx context.Context, skipped []model.SkippedPosition) error {
	if len(skipped) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, sk := range skipped {
		batch.Queue(`
			INSERT INTO skipped_positions (position_id, reason_code, created_at)
			VALUES ($1, $2, now())
		`, sk.PositionID, string(sk.ReasonCode))
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range skipped {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func usdOrNull(v model.USDValue) interface{} {
	if !v.Known {
		return nil
	}
	return v.Amount.String()
}
