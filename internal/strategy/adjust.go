package strategy

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nikhilbhatia/banknifty-sandwich/internal/models"
	"github.com/nikhilbhatia/banknifty-sandwich/internal/util"
)

// stage1 is the first firefight: roll the core short put up toward the entry
// future level and shift both bread puts up by the bread distance. Shifts are
// relative to the previous strikes, producing a strictly rising ladder over
// repeated adjustments.
func (s *Sandwich) stage1(now time.Time) {
	corePut := s.book.OpenByRole(models.RoleCorePutShort)
	outerShort := s.book.OpenByRole(models.RoleOuterPutShort)
	outerLong := s.book.OpenByRole(models.RoleOuterPutLong)
	if corePut == nil || outerShort == nil || outerLong == nil {
		s.logger.Warn("stage 1 skipped: put structure incomplete")
		return
	}

	// Discrete minimization: the candidate bringing the rolled strike
	// closest to the rounded entry future level wins.
	target := util.RoundStrike(s.ctx.RefFuture)
	bestShift := corePutRollCandidates[0]
	bestDiff := -1
	for _, shift := range corePutRollCandidates {
		diff := corePut.Strike + shift - target
		if diff < 0 {
			diff = -diff
		}
		if bestDiff < 0 || diff < bestDiff {
			bestDiff = diff
			bestShift = shift
		}
	}
	newCoreStrike := util.RoundStrike(float64(corePut.Strike + bestShift))
	newOuterShortStrike := util.RoundStrike(float64(outerShort.Strike + s.breadDistance()))
	newOuterLongStrike := util.RoundStrike(float64(newOuterShortStrike - hedgeOffset))

	plan := []plannedLeg{
		{s.optionSymbol(newCoreStrike, models.KindPut), models.KindPut, newCoreStrike, models.Short, 1, models.RoleCorePutShort, 0},
		{s.optionSymbol(newOuterShortStrike, models.KindPut), models.KindPut, newOuterShortStrike, models.Short, 2, models.RoleOuterPutShort, 0},
		{s.optionSymbol(newOuterLongStrike, models.KindPut), models.KindPut, newOuterLongStrike, models.Long, 2, models.RoleOuterPutLong, 0},
	}
	if err := s.priceBatch(plan); err != nil {
		s.logger.WithError(err).Warn("stage 1 skipped this cycle: pricing failed")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"core_put":  fmt.Sprintf("%d -> %d", corePut.Strike, newCoreStrike),
		"bread_put": fmt.Sprintf("%d -> %d", outerShort.Strike, newOuterShortStrike),
	}).Info("firefight stage 1: rolling core put, shifting bread puts")

	s.closeRole(now, models.RoleCorePutShort)
	s.closeRole(now, models.RoleOuterPutShort)
	s.closeRole(now, models.RoleOuterPutLong)
	for _, p := range plan {
		s.openLeg(now, p.symbol, p.kind, p.strike, p.direction, p.lots, p.role, p.price)
	}

	if err := s.sm.Transition(models.StateDefense1, models.ConditionRallyDefense, now); err != nil {
		s.logger.WithError(err).Error("stage 1 transition failed")
		return
	}
	s.ctx.LastAdjustment = now
	s.notifyEvent("defense_1", fmt.Sprintf("core put rolled to %d, bread puts to %d/%d",
		newCoreStrike, newOuterShortStrike, newOuterLongStrike))
}

// stage2 shifts both bread puts a further fixed distance up from the
// previous short strike.
func (s *Sandwich) stage2(now time.Time) {
	outerShort := s.book.OpenByRole(models.RoleOuterPutShort)
	outerLong := s.book.OpenByRole(models.RoleOuterPutLong)
	if outerShort == nil || outerLong == nil {
		s.logger.Warn("stage 2 skipped: bread puts missing")
		return
	}

	newShortStrike := util.RoundStrike(float64(outerShort.Strike + stage2Shift))
	newLongStrike := util.RoundStrike(float64(newShortStrike - hedgeOffset))

	plan := []plannedLeg{
		{s.optionSymbol(newShortStrike, models.KindPut), models.KindPut, newShortStrike, models.Short, 2, models.RoleOuterPutShort, 0},
		{s.optionSymbol(newLongStrike, models.KindPut), models.KindPut, newLongStrike, models.Long, 2, models.RoleOuterPutLong, 0},
	}
	if err := s.priceBatch(plan); err != nil {
		s.logger.WithError(err).Warn("stage 2 skipped this cycle: pricing failed")
		return
	}

	s.logger.WithField("bread_put",
		fmt.Sprintf("%d -> %d", outerShort.Strike, newShortStrike)).
		Info("firefight stage 2: secondary bread put shift")

	s.closeRole(now, models.RoleOuterPutShort)
	s.closeRole(now, models.RoleOuterPutLong)
	for _, p := range plan {
		s.openLeg(now, p.symbol, p.kind, p.strike, p.direction, p.lots, p.role, p.price)
	}

	if err := s.sm.Transition(models.StateDefense2, models.ConditionPutsBreached, now); err != nil {
		s.logger.WithError(err).Error("stage 2 transition failed")
		return
	}
	s.ctx.LastAdjustment = now
	s.notifyEvent("defense_2", fmt.Sprintf("bread puts shifted to %d/%d", newShortStrike, newLongStrike))
}

// convertToStraddle aligns the sold puts with the sold call strike on expiry
// week Monday, leaving a short straddle hedged on both sides.
func (s *Sandwich) convertToStraddle(now time.Time, callStrike int) {
	newLongStrike := util.RoundStrike(float64(callStrike - hedgeOffset))

	plan := []plannedLeg{
		{s.optionSymbol(callStrike, models.KindPut), models.KindPut, callStrike, models.Short, 2, models.RoleOuterPutShort, 0},
		{s.optionSymbol(newLongStrike, models.KindPut), models.KindPut, newLongStrike, models.Long, 2, models.RoleOuterPutLong, 0},
	}
	if err := s.priceBatch(plan); err != nil {
		s.logger.WithError(err).Warn("straddle conversion skipped this cycle: pricing failed")
		return
	}

	s.logger.WithField("strike", callStrike).Info("converting to short straddle")

	s.closeRole(now, models.RoleOuterPutShort)
	s.closeRole(now, models.RoleOuterPutLong)
	for _, p := range plan {
		s.openLeg(now, p.symbol, p.kind, p.strike, p.direction, p.lots, p.role, p.price)
	}

	if err := s.sm.Transition(models.StateStraddle, models.ConditionStraddleConv, now); err != nil {
		s.logger.WithError(err).Error("straddle transition failed")
		return
	}
	s.ctx.LastAdjustment = now
	s.notifyEvent("straddle", fmt.Sprintf("sold puts moved to call strike %d, hedge at %d",
		callStrike, newLongStrike))
}
