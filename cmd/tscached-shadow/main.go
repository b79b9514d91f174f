// Command tscached-shadow performs one read-ahead pass: acquire the
// distributed leader lock, refresh every tracked query, release, exit.
// Grounded on original_source/tscached/readahead.py, which is invoked the
// same way (one config flag, one pass, process exit) — typically from an
// external scheduler (cron) rather than looping in-process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-kit/log/level"

	"github.com/tscached/tscached/modules/cache"
	"github.com/tscached/tscached/modules/coherence"
	"github.com/tscached/tscached/modules/query"
	"github.com/tscached/tscached/modules/readahead"
	"github.com/tscached/tscached/pkg/config"
	tslog "github.com/tscached/tscached/pkg/util/log"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code (spec §6: "Worker: 0 normal,
// non-zero on unrecoverable config error") separately from main so tests
// could exercise it without calling os.Exit, though none currently do —
// the harness is a one-shot binary, not a library.
func run() int {
	configFile := flag.String("config.file", "", "Path to the tscached YAML config file.")
	flag.Parse()

	cfg, err := config.LoadFromFile(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed loading config: %v\n", err)
		return 1
	}

	tslog.InitLogger(cfg.Server.LogLevel, tslog.Format(cfg.Server.LogFormat))

	redisClient := cache.NewRedisClient(cfg.Redis.Addr())
	kairosClient := query.NewKairosClient(cfg.KairosDB.Host, cfg.KairosDB.Port)

	engine := &coherence.Engine{
		Cache:                redisClient,
		Kairos:               kairosClient,
		Staleness:            cfg.Data.StalenessThreshold,
		ChunkLength:          cfg.Chunking.ChunkLength,
		PerChunkTimeout:      query.DefaultPerChunkTimeout,
		ExpectedResolutionMs: cfg.Data.ExpectedResolutionMs,
		MergeCutoff:          10,
		AcceptableSkew:       6,
		KQueryTTL:            query.DefaultTTL,
		MTSTTL:               query.DefaultTTL,
		GCThreshold:          210 * time.Minute,
		ExpiryWindow:         3 * time.Hour,
	}

	ctx := context.Background()
	lease, ok, err := readahead.BecomeLeader(ctx, redisClient, cfg.Shadow.LeaderExpiration)
	if err != nil {
		level.Error(tslog.Logger).Log("msg", "failed acquiring read-ahead lock", "err", err)
		return 1
	}
	if !ok {
		other, _ := readahead.CurrentLeaderHostname(ctx, redisClient)
		level.Info(tslog.Logger).Log("msg", "read-ahead lock held elsewhere, skipping this pass", "holder", other)
		return 0
	}
	defer func() {
		if err := lease.Release(ctx); err != nil {
			level.Warn(tslog.Logger).Log("msg", "failed releasing read-ahead lock", "err", err)
		}
	}()

	if err := readahead.RunPass(ctx, engine, time.Now()); err != nil {
		level.Error(tslog.Logger).Log("msg", "read-ahead pass aborted", "err", err)
		return 1
	}

	level.Info(tslog.Logger).Log("msg", "read-ahead pass complete")
	return 0
}
