// Command backtest replays the sandwich strategy month by month over a date
// range against the mock venue, forcing entry at each monthly expiry and
// stepping the monitor once per day with a simulated clock.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/nikhilbhatia/banknifty-sandwich/internal/broker"
	"github.com/nikhilbhatia/banknifty-sandwich/internal/expiry"
	"github.com/nikhilbhatia/banknifty-sandwich/internal/marketdata"
	"github.com/nikhilbhatia/banknifty-sandwich/internal/models"
	"github.com/nikhilbhatia/banknifty-sandwich/internal/strategy"
)

type monthResult struct {
	entryExpiry time.Time
	nextExpiry  time.Time
	finalState  models.StrategyState
	totalPnL    float64
	pnlPct      float64
}

func main() {
	var (
		startStr string
		endStr   string
		capital  float64
		spot     float64
		drift    float64
		verbose  bool
	)
	flag.StringVar(&startStr, "start", "2025-01-01", "Backtest start date (YYYY-MM-DD)")
	flag.StringVar(&endStr, "end", "2025-12-31", "Backtest end date (YYYY-MM-DD)")
	flag.Float64Var(&capital, "capital", 1_000_000, "Capital base for P&L percentage")
	flag.Float64Var(&spot, "spot", 45000, "Starting spot level")
	flag.Float64Var(&drift, "drift", 30, "Simulated daily spot drift in points")
	flag.BoolVar(&verbose, "v", false, "Verbose strategy logging")
	flag.Parse()

	_ = godotenv.Load()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	if verbose {
		logger.SetLevel(logrus.InfoLevel)
	}

	start, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad -start: %v\n", err)
		os.Exit(1)
	}
	end, err := time.Parse("2006-01-02", endStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad -end: %v\n", err)
		os.Exit(1)
	}

	cal := expiry.NewCalendar()
	var results []monthResult

	for month := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC); !month.After(end); month = month.AddDate(0, 1, 0) {
		curExpiry := cal.MonthlyExpiry(month.Year(), month.Month())
		if curExpiry.Before(start) || curExpiry.After(end) {
			continue
		}
		nextExpiry := cal.NextExpiry(curExpiry)

		result := runMonth(cal, curExpiry, nextExpiry, capital, spot, drift, logger)
		results = append(results, result)
	}

	report(results)
}

// runMonth enters one sandwich at the expiry-day 15:00 reference and steps
// it daily until it closes or the next expiry passes.
func runMonth(cal *expiry.Calendar, curExpiry, nextExpiry time.Time,
	capital, startSpot, drift float64, logger *logrus.Logger) monthResult {
	venue := broker.NewMockBroker(startSpot, logger)
	provider := marketdata.NewBrokerProvider(venue, "BANKNIFTY", logger,
		marketdata.WithTTL(time.Nanosecond))

	sandwich := strategy.New(strategy.Config{
		Underlying:      "BANKNIFTY",
		Capital:         capital,
		Lots:            1,
		LotSize:         30,
		ProfitTargetPct: 12,
		EntryHour:       15,
	}, venue, provider, cal, logger, nil, nil)

	entryClock := time.Date(curExpiry.Year(), curExpiry.Month(), curExpiry.Day(), 15, 0, 0, 0, time.UTC)
	entered, err := sandwich.Enter(entryClock, strategy.EntryOptions{
		Force:         true,
		Spot:          startSpot,
		Future:        startSpot * 1.002,
		CurrentExpiry: curExpiry,
		NextExpiry:    nextExpiry,
	})
	if err != nil || !entered {
		return monthResult{entryExpiry: curExpiry, nextExpiry: nextExpiry, finalState: sandwich.State()}
	}

	spot := startSpot
	for day := curExpiry.AddDate(0, 0, 1); !day.After(nextExpiry); day = day.AddDate(0, 0, 1) {
		spot += drift
		venue.SetSpot(spot)

		clock := time.Date(day.Year(), day.Month(), day.Day(), 15, 0, 0, 0, time.UTC)
		sandwich.Monitor(clock)
		if sandwich.State() == models.StateClosed {
			break
		}
	}

	snap := sandwich.Metrics(time.Date(nextExpiry.Year(), nextExpiry.Month(), nextExpiry.Day(), 15, 0, 0, 0, time.UTC))
	return monthResult{
		entryExpiry: curExpiry,
		nextExpiry:  nextExpiry,
		finalState:  snap.State,
		totalPnL:    snap.TotalPnL,
		pnlPct:      snap.PnLPctCapital,
	}
}

func report(results []monthResult) {
	if len(results) == 0 {
		fmt.Println("no expiries in range")
		return
	}

	wins := 0
	var sum float64
	fmt.Printf("%-12s %-12s %-10s %12s %8s\n", "ENTRY", "EXIT-BY", "STATE", "PNL", "PNL%")
	for _, r := range results {
		fmt.Printf("%-12s %-12s %-10s %12.2f %7.2f%%\n",
			r.entryExpiry.Format("2006-01-02"), r.nextExpiry.Format("2006-01-02"),
			r.finalState, r.totalPnL, r.pnlPct)
		if r.totalPnL > 0 {
			wins++
		}
		sum += r.totalPnL
	}
	fmt.Printf("\nmonths=%d win_rate=%.1f%% avg_pnl=%.2f\n",
		len(results), float64(wins)/float64(len(results))*100, sum/float64(len(results)))
}
