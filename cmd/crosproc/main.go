// crosproc is the Batch Driver's CLI entrypoint: it derives SessionStart and
// SessionEnd rows from raw telemetry events for every incremental run, or,
// with --drop, tears down the derived and pending-session tables.
//
// Usage:
//
//	crosproc --raw raw.json --cros cros.json [--intermediate pending.json] [--state state.json] [--debug]
//	crosproc --raw raw.json --cros cros.json --drop
//
// Exit codes:
//   - 0: success
//   - 1: a connection, query, or state-machine error aborted the run
//   - 2: usage error (missing required flag)
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/vibeus/cros-session-deriver/internal/config"
	"github.com/vibeus/cros-session-deriver/internal/driver"
	"github.com/vibeus/cros-session-deriver/internal/index"
	"github.com/vibeus/cros-session-deriver/internal/log"
	"github.com/vibeus/cros-session-deriver/internal/metrics"
	"github.com/vibeus/cros-session-deriver/internal/persistence/sqlite"
	"github.com/vibeus/cros-session-deriver/internal/sink"
	"github.com/vibeus/cros-session-deriver/internal/source"
	"github.com/vibeus/cros-session-deriver/internal/store"
	"github.com/vibeus/cros-session-deriver/internal/txn"
)

var Version = "dev"

func main() {
	var (
		rawPath          = flag.String("raw", "", "path to the raw-event source connection config (JSON)")
		crosPath         = flag.String("cros", "", "path to the derived-session sink connection config (JSON)")
		intermediatePath = flag.String("intermediate", "", "optional path to a separate pending-session store connection config (JSON); defaults to --cros")
		statePath        = flag.String("state", "", "optional path to the processor state file (bookmark), read at start; the new state is printed to stdout")
		metricsPath      = flag.String("metrics", "", "optional path to write a Prometheus textfile-collector snapshot")
		debug            = flag.Bool("debug", false, "dispatch events but roll back instead of committing")
		drop             = flag.Bool("drop", false, "drop the derived-session and pending-session tables, then exit")
	)
	flag.Parse()

	if *rawPath == "" || *crosPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --raw and --cros are required")
		flag.Usage()
		os.Exit(2)
	}

	log.Configure(log.Config{Level: os.Getenv("CROSPROC_LOG_LEVEL"), Output: os.Stderr, Service: "cros-session-deriver", Version: Version})

	runID := uuid.New().String()
	ctx := log.ContextWithRunID(context.Background(), runID)
	logger := log.WithContext(ctx, log.WithComponent("cli"))

	if err := run(ctx, *rawPath, *crosPath, *intermediatePath, *statePath, *metricsPath, *debug, *drop); err != nil {
		logger.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, rawPath, crosPath, intermediatePath, statePath, metricsPath string, debug, drop bool) error {
	logger := log.WithContext(ctx, log.WithComponent("cli"))

	rawConn, err := config.LoadConnectionConfig(rawPath, logger)
	if err != nil {
		return err
	}
	crosConn, err := config.LoadConnectionConfig(crosPath, logger)
	if err != nil {
		return err
	}
	var intermediateConn *config.ConnectionConfig
	if intermediatePath != "" {
		intermediateConn, err = config.LoadConnectionConfig(intermediatePath, logger)
		if err != nil {
			return err
		}
	}

	sqliteCfg := sqlite.DefaultConfig()

	rawDB, err := sqlite.Open(rawConn.Database, sqliteCfg)
	if err != nil {
		return fmt.Errorf("opening raw event source: %w", err)
	}
	defer rawDB.Close()

	crosDB, err := sqlite.Open(crosConn.Database, sqliteCfg)
	if err != nil {
		return fmt.Errorf("opening derived-session sink: %w", err)
	}
	defer crosDB.Close()

	pendingDB := crosDB
	if intermediateConn != nil {
		pendingDB, err = sqlite.Open(intermediateConn.Database, sqliteCfg)
		if err != nil {
			return fmt.Errorf("opening pending-session store: %w", err)
		}
		defer pendingDB.Close()
	}

	if drop {
		return dropTables(ctx, pendingDB, crosDB)
	}

	if issues, err := sqlite.VerifyIntegrity(crosConn.Database, "quick"); err != nil {
		logger.Warn().Err(err).Msg("integrity check could not run")
	} else if len(issues) > 0 {
		logger.Warn().Strs("issues", issues).Msg("derived-session database failed its quick integrity check")
	}

	if err := store.BootstrapPending(ctx, pendingDB); err != nil {
		return err
	}
	if err := store.BootstrapSink(ctx, crosDB); err != nil {
		return err
	}

	reg := metrics.New()

	state, err := config.LoadProcessorState(statePath)
	if err != nil {
		return err
	}

	uow, err := txn.Begin(ctx, pendingDB, crosDB)
	if err != nil {
		return err
	}

	pstore := store.New(uow.PendingTx())
	idx, err := index.Load(ctx, pstore)
	if err != nil {
		uow.Rollback()
		return err
	}

	snk := sink.New(uow.SinkTx())
	src := source.New(rawDB)
	drv := driver.New(idx, pstore, snk, src, reg, logger)

	newState, err := drv.Run(ctx, state.MaxRawEventReceivingTime)
	if err != nil {
		uow.Rollback()
		return err
	}

	if debug {
		uow.Rollback()
		logger.Info().Msg("debug mode: rolled back, no durable side effects")
	} else {
		if err := uow.Commit(); err != nil {
			return err
		}
	}

	if metricsPath != "" {
		if err := reg.WriteTextfile(metricsPath); err != nil {
			logger.Warn().Err(err).Msg("writing metrics textfile failed")
		}
	}

	if debug {
		return nil
	}
	return config.WriteProcessorState(os.Stdout, newState)
}

func dropTables(ctx context.Context, pendingDB, crosDB *sql.DB) error {
	if err := store.DropSink(ctx, crosDB); err != nil {
		return err
	}
	if err := store.DropPending(ctx, pendingDB); err != nil {
		return err
	}
	return nil
}
