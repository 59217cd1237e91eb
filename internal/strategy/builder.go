package strategy

import (
	"fmt"
	"time"

	"github.com/nikhilbhatia/banknifty-sandwich/internal/models"
	"github.com/nikhilbhatia/banknifty-sandwich/internal/util"
)

// plannedLeg is one leg of a build or adjustment batch, priced before any
// order is placed so a failed lookup aborts the batch with nothing mutated.
type plannedLeg struct {
	symbol    string
	kind      models.ContractKind
	strike    int
	direction models.Direction
	lots      int
	role      models.LegRole
	price     float64
}

// buildInitialLegs materializes the seven-leg structure from the entry
// references. Strikes derive from F0 and S0 only, never from other legs'
// fills, so the build order is fixed but each strike is independent.
func (s *Sandwich) buildInitialLegs(now time.Time) error {
	f0 := s.ctx.RefFuture
	s0 := s.ctx.RefSpot
	d := s.breadDistance()

	coreCallStrike := util.RoundStrike(f0 + hedgeOffset)
	corePutStrike := util.RoundStrike(f0 - hedgeOffset)
	outerCallShortStrike := util.RoundStrike(s0 + float64(d))
	outerCallLongStrike := util.RoundStrike(float64(outerCallShortStrike + hedgeOffset))
	outerPutShortStrike := util.RoundStrike(s0 - float64(d))
	outerPutLongStrike := util.RoundStrike(float64(outerPutShortStrike - hedgeOffset))

	plan := []plannedLeg{
		{s.futureSymbol(), models.KindFuture, 0, models.Short, 1, models.RoleCoreFuture, f0},
		{s.optionSymbol(coreCallStrike, models.KindCall), models.KindCall, coreCallStrike, models.Long, 1, models.RoleCoreCallLong, 0},
		{s.optionSymbol(corePutStrike, models.KindPut), models.KindPut, corePutStrike, models.Short, 1, models.RoleCorePutShort, 0},
		{s.optionSymbol(outerCallShortStrike, models.KindCall), models.KindCall, outerCallShortStrike, models.Short, 2, models.RoleOuterCallShort, 0},
		{s.optionSymbol(outerCallLongStrike, models.KindCall), models.KindCall, outerCallLongStrike, models.Long, 2, models.RoleOuterCallLong, 0},
		{s.optionSymbol(outerPutShortStrike, models.KindPut), models.KindPut, outerPutShortStrike, models.Short, 2, models.RoleOuterPutShort, 0},
		{s.optionSymbol(outerPutLongStrike, models.KindPut), models.KindPut, outerPutLongStrike, models.Long, 2, models.RoleOuterPutLong, 0},
	}

	if err := s.priceBatch(plan); err != nil {
		return err
	}
	for _, p := range plan {
		s.openLeg(now, p.symbol, p.kind, p.strike, p.direction, p.lots, p.role, p.price)
	}
	return nil
}

// priceBatch fills in option premiums for every planned leg that has none.
func (s *Sandwich) priceBatch(plan []plannedLeg) error {
	for i := range plan {
		if plan[i].price != 0 || plan[i].kind == models.KindFuture {
			continue
		}
		price, err := s.data.OptionPrice(s.ctx.NextExpiry, plan[i].strike, plan[i].kind)
		if err != nil {
			return fmt.Errorf("pricing %s: %w", plan[i].symbol, err)
		}
		plan[i].price = price
	}
	return nil
}

func (s *Sandwich) futureSymbol() string {
	return util.FutureSymbol(s.cfg.Underlying, s.ctx.NextExpiry)
}

func (s *Sandwich) optionSymbol(strike int, kind models.ContractKind) string {
	return util.OptionSymbol(s.cfg.Underlying, s.ctx.NextExpiry, strike, string(kind))
}
