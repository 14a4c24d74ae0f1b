// Package costs implements the per-tick cost accrual formulas of
// . Every formula resolves in integer cents via
// internal/money's 128-bit-intermediate helpers; no float ever touches
// a cost accumulator.
package costs

import "github.com/simcash/simcash/internal/money"

// Rates bundles the bps/cents-per-unit rates cost table
// draws from. All *Bps fields are in basis points (1/10000) applied
// per tick via Cents.MulBps.
type Rates struct {
	OverdraftBpsPerTick   int64
	DelayRate             int64 // cents per remaining-cent per tick, expressed as bps
	CollateralBpsPerTick  int64
	LiquidityBpsPerTick   int64
	DeadlinePenalty       money.Cents
	SplitFriction         money.Cents
	EODPenaltyPerTx       money.Cents
	OverdueDelayMultiplier int64 // bps multiplier (10_000 == 1.0x)
}

// BandMultiplier maps a priority band to its delay-cost multiplier in
// basis points.
type BandMultiplier struct {
	Low, Normal, Urgent int64
}

// Overdraft returns the overdraft cost for one tick: |min(balance,0)| *
// overdraft_bps_per_tick / 10_000.
func Overdraft(balance money.Cents, rates Rates) money.Cents {
	if balance >= 0 {
		return 0
	}
	return balance.Neg().MulBps(rates.OverdraftBpsPerTick)
}

// QueuedAmount is one transaction's contribution to the delay-cost sum:
// its remaining amount, priority band, and overdue flag.
type QueuedAmount struct {
	RemainingAmount money.Cents
	Band            int // 0=Low,1=Normal,2=Urgent, matching txn.PriorityBand
	Overdue         bool
}

// Delay returns Σ remaining_amount * delay_rate * band_multiplier *
// (overdue?overdue_mult:1) over the given Q1∪Q2 snapshot.
func Delay(entries []QueuedAmount, rates Rates, bandMult BandMultiplier) money.Cents {
	var total money.Cents
	for _, e := range entries {
		bm := bandMult.bpsFor(e.Band)
		term := e.RemainingAmount.MulBps(rates.DelayRate).MulBps(bm)
		if e.Overdue {
			term = term.MulBps(rates.OverdueDelayMultiplier)
		}
		total = total.Add(term)
	}
	return total
}

func (bm BandMultiplier) bpsFor(band int) int64 {
	switch band {
	case 2:
		return bm.Urgent
	case 1:
		return bm.Normal
	default:
		return bm.Low
	}
}

// Collateral returns posted_collateral * collateral_bps_per_tick /
// 10_000.
func Collateral(postedCollateral money.Cents, rates Rates) money.Cents {
	return postedCollateral.MulBps(rates.CollateralBpsPerTick)
}

// LiquidityOpportunity returns allocated_liquidity *
// liquidity_bps_per_tick / 10_000.
func LiquidityOpportunity(allocatedLiquidity money.Cents, rates Rates) money.Cents {
	return allocatedLiquidity.MulBps(rates.LiquidityBpsPerTick)
}

// Deadline returns the flat deadline_penalty charged once when a
// transaction transitions to Overdue.
func Deadline(rates Rates) money.Cents {
	return rates.DeadlinePenalty
}

// SplitFrictionCost returns split_friction * (n_parts - 1), charged at
// split time.
func SplitFrictionCost(rates Rates, nParts int) money.Cents {
	if nParts <= 1 {
		return 0
	}
	return rates.SplitFriction.MulFrac(int64(nParts-1), 1)
}

// EODPenalty returns eod_penalty_per_transaction * unsettled_count,
// charged at a day boundary.
func EODPenalty(rates Rates, unsettledCount int) money.Cents {
	return rates.EODPenaltyPerTx.MulFrac(int64(unsettledCount), 1)
}
