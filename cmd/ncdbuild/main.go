// Command ncdbuild builds an NCD file from a flat text file or an existing
// bbolt database.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/theflywheel/ncd"
	"github.com/theflywheel/ncd/sources"
)

func main() {
	var (
		flatPath    = flag.String("flat", "", "build from a line-oriented flat text file")
		boltPath    = flag.String("bolt", "", "build from a bbolt database file")
		boltBucket  = flag.String("bolt-bucket", "default", "bucket name to read from the bbolt database")
		out         = flag.String("out", "", "output NCD file path (required)")
		targetPage  = flag.Uint32("target-page-size", 32*1024, "target page size in bytes")
		loadFactor  = flag.Float64("target-load-factor", 0.5, "target table load factor")
		metricsAddr = flag.String("metrics-addr", "", "if set, serve Prometheus build metrics at this address (e.g. :9090) while the build runs")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if lvl := os.Getenv("NCD_LOG_LEVEL"); lvl != "" {
		if parsed, err := zerolog.ParseLevel(lvl); err == nil {
			logger = logger.Level(parsed)
		}
	}

	if *out == "" {
		logger.Fatal().Msg("--out is required")
	}

	var source ncd.ValueSource
	switch {
	case *flatPath != "":
		source = sources.NewFlatSource(*flatPath, sources.DefaultFlatConfig())
	case *boltPath != "":
		bs, err := sources.NewBoltSource(*boltPath, *boltBucket)
		if err != nil {
			logger.Fatal().Err(err).Msg("open bolt source")
		}
		defer bs.Close()
		source = bs
	default:
		logger.Fatal().Msg("one of --flat or --bolt is required")
	}

	config := ncd.DefaultBuildConfig().
		WithTargetPageSize(*targetPage).
		WithTargetLoadFactor(*loadFactor)

	stamp := uint32(time.Now().Unix() & 0xFFFFFFFF)
	build, err := ncd.NewBuild(config, source, *out, stamp, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("prepare build")
	}

	if *metricsAddr != "" {
		registry := prometheus.NewRegistry()
		metrics, err := ncd.NewMetrics(registry)
		if err != nil {
			logger.Fatal().Err(err).Msg("register build metrics")
		}
		build.SetMetrics(metrics)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		logger.Info().Str("addr", *metricsAddr).Msg("serving build metrics")
	}

	ctx := context.Background()
	if err := build.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("build failed")
	}

	fmt.Println(build.Result())
}
