// Command tscached runs the HTTP-serving half of the cache: the request
// dispatch surface (modules/frontend) backed by the coherence engine
// (modules/coherence). The read-ahead worker is a separate binary
// (cmd/tscached-shadow), matching the original's split between the Flask
// app and its standalone shadow-load script.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-kit/log/level"

	"github.com/tscached/tscached/modules/cache"
	"github.com/tscached/tscached/modules/coherence"
	"github.com/tscached/tscached/modules/frontend"
	"github.com/tscached/tscached/modules/query"
	"github.com/tscached/tscached/modules/readahead"
	"github.com/tscached/tscached/pkg/config"
	tslog "github.com/tscached/tscached/pkg/util/log"
)

func main() {
	configFile := flag.String("config.file", "", "Path to the tscached YAML config file.")
	flag.Parse()

	cfg, err := config.LoadFromFile(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed loading config: %v\n", err)
		os.Exit(1)
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

	handler := &frontend.Handler{
		Engine: engine,
		Cache:  redisClient,
		Kairos: kairosClient,
		Shadow: cfg.Shadow,
		Expiry: cfg.Expiry,
		Eligible: readahead.Config{
			HTTPHeaderName:    cfg.Shadow.HTTPHeaderName,
			ReferrerBlacklist: cfg.Shadow.ReferrerBlacklist,
			LeaderExpiration:  int(cfg.Shadow.LeaderExpiration.Seconds()),
		},
	}
	router := frontend.NewRouter(handler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.HTTPListenAddress, cfg.Server.HTTPListenPort)
	level.Info(tslog.Logger).Log("msg", "tscached listening", "addr", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		level.Error(tslog.Logger).Log("msg", "server exited", "err", err)
		os.Exit(1)
	}
}
