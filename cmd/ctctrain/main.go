// Command ctctrain trains an LSTM acoustic model with the
// CTC criterion on an HTK corpus.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unixpickle/anyspeech/anyasr"
	"github.com/unixpickle/anyspeech/anyhtk"
	"github.com/unixpickle/anyspeech/internal/config"
	"github.com/unixpickle/anyspeech/internal/featcache"
	"github.com/unixpickle/anyspeech/internal/tracing"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/rip"
)

const serviceName = "ctctrain"

func main() {
	configFile := flag.String("config", "", "path to config file (optional)")
	flag.String("scp", "", "SCP file listing feature files")
	flag.String("mlf", "", "MLF file with transcriptions")
	flag.String("symbols", "", "state list (blank last)")
	flag.String("feature_root", "", "directory for relative feature paths")
	flag.String("mean", "", "global mean file")
	flag.String("inv_std", "", "global inverse standard deviation file")
	flag.String("model_path", "", "model checkpoint path")
	flag.Int("hidden", 0, "LSTM hidden units")
	flag.Int("layers", 0, "LSTM layers")
	flag.Float64("learning_rate", 0, "per-sample learning rate")
	flag.String("optimizer", "", "momentum or adam")
	flag.Float64("momentum", 0, "momentum coefficient")
	flag.Int("batch_size", 0, "utterances per mini-batch")
	flag.Int("max_iters", 0, "stop after this many iterations (0 for no limit)")
	flag.Int("metrics_port", 0, "Prometheus metrics port (0 to disable)")
	flag.String("redis", "", "Redis address for the feature cache (optional)")
	flag.Bool("otel_enabled", false, "write trace spans to stderr")
	flag.Parse()

	if err := run(*configFile, flagOverrides(), os.Stderr, rip.NewRIP().Chan()); err != nil {
		essentials.Die(err)
	}
}

// run trains until done is closed or training stops on its
// own.
// Spans are written to traceOut when tracing is enabled,
// and are flushed before run returns.
func run(configFile string, overrides map[string]interface{}, traceOut io.Writer,
	done <-chan struct{}) error {
	cfg, err := config.Load(configFile, overrides)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var cache anyhtk.FrameCache
	if cfg.Redis != "" {
		log.Printf("Connecting to Redis at %s...", cfg.Redis)
		c, err := featcache.New(cfg.Redis, cfg.RedisTTL)
		if err != nil {
			log.Printf("Warning: %v (continuing without cache)", err)
		} else {
			defer c.Close()
			cache = c
		}
	}

	log.Println("Setting up...")
	session, err := anyasr.NewSession(cfg, cache)
	if err != nil {
		return err
	}

	if cfg.OTELEnabled {
		shutdown, err := tracing.Init(serviceName, session.RunID, traceOut)
		if err != nil {
			log.Printf("Warning: failed to initialize tracer: %v", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Printf("Warning: failed to flush spans: %v", err)
				}
			}()
		}
	}

	if cfg.MetricsPort > 0 {
		server := startMetricsServer(cfg.MetricsPort)
		defer server.Close()
	}

	log.Println("Press ctrl+c once to stop...")
	return session.Run(done)
}

// flagOverrides returns the flags that were set explicitly
// on the command line, keyed by config name.
func flagOverrides() map[string]interface{} {
	res := map[string]interface{}{}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			return
		}
		res[f.Name] = f.Value.(flag.Getter).Get()
	})
	return res
}

func startMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		log.Printf("Metrics server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server error: %v", err)
		}
	}()
	return server
}
