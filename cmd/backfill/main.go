// Command backfill runs one ingestion job and prints its result as JSON.
// The exit code is 1 when the job did not succeed.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"BarPull/internal/di"
	"BarPull/internal/domain/models"
	"BarPull/internal/usecase"
	"BarPull/pkg/config"
	"BarPull/pkg/util"
)

type options struct {
	kind        string
	symbol      string
	timeframe   string
	start       string
	end         string
	lookback    int
	incremental bool
}

func main() {
	var o options
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.StringVar(&o.kind, "kind", usecase.MsgBackfill, "job kind: backfill, repair or quality")
	flag.StringVar(&o.symbol, "symbol", "", "instrument ticker")
	flag.StringVar(&o.timeframe, "tf", "1h", "timeframe")
	flag.StringVar(&o.start, "start", "", "backfill start (RFC3339 or YYYY-MM-DD)")
	flag.StringVar(&o.end, "end", "", "backfill end (RFC3339 or YYYY-MM-DD)")
	flag.IntVar(&o.lookback, "lookback", 0, "lookback hours for repair and quality")
	flag.BoolVar(&o.incremental, "incremental", false, "resume backfill from the latest coverage")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	rt, cleanup, err := di.InitializeEngine(cfg)
	if err != nil {
		log.Fatalf("engine initialization failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	result, ok, err := run(ctx, rt, o)
	stop()
	cleanup()
	if err != nil && result == nil {
		log.Fatalf("%s: %v", o.kind, err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatalf("encode result: %v", err)
	}
	if !ok {
		os.Exit(1)
	}
}

var validate = validator.New()

func run(ctx context.Context, rt *di.Runtime, o options) (any, bool, error) {
	switch o.kind {
	case usecase.MsgBackfill:
		cmd := models.BackfillCommand{Symbol: o.symbol, Timeframe: o.timeframe, Incremental: o.incremental}
		if err := prepare(&cmd); err != nil {
			return nil, false, err
		}
		start, err := parseBound(o.start)
		if err != nil {
			return nil, false, fmt.Errorf("start: %w", err)
		}
		end, err := parseBound(o.end)
		if err != nil {
			return nil, false, fmt.Errorf("end: %w", err)
		}
		cmd.Start, cmd.End = start, end
		res, err := rt.Engine.Backfill(ctx, cmd)
		return res, res != nil && res.Success, err
	case usecase.MsgRepair:
		cmd := models.RepairCommand{Symbol: o.symbol, Timeframe: o.timeframe, LookbackHours: o.lookback}
		if err := prepare(&cmd); err != nil {
			return nil, false, err
		}
		res, err := rt.Engine.RepairGaps(ctx, cmd)
		return res, res != nil && res.Success, err
	case usecase.MsgQuality:
		cmd := models.QualityCommand{Symbol: o.symbol, Timeframe: o.timeframe, LookbackHours: o.lookback}
		if err := prepare(&cmd); err != nil {
			return nil, false, err
		}
		snap, err := rt.Engine.AssessQuality(ctx, cmd)
		if err != nil {
			return nil, false, err
		}
		return snap, true, nil
	default:
		return nil, false, fmt.Errorf("unknown kind %q", o.kind)
	}
}

// prepare fills defaults for zero fields and validates the command.
func prepare(cmd any) error {
	if err := defaults.Set(cmd); err != nil {
		return err
	}
	return validate.Struct(cmd)
}

func parseBound(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, ok := util.ParseTime(s)
	if !ok {
		return nil, fmt.Errorf("cannot parse %q", s)
	}
	return &t, nil
}
