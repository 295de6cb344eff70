package main

import (
	"fmt"
	"log/slog"

	"github.com/grafana/pyroscope-go"

	"github.com/rickgao/eventstream/internal/config"
)

// startProfiling starts continuous profiling when a server address is set.
// The returned func stops it.
func startProfiling(cfg config.ProfilingConfig, instanceID string, logger *slog.Logger) (func(), error) {
	if cfg.ServerAddress == "" {
		return func() {}, nil
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.AppName,
		ServerAddress:   cfg.ServerAddress,
		Tags:            map[string]string{"instance": instanceID},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("start profiler: %w", err)
	}

	logger.Info("started profiler", "server", cfg.ServerAddress, "app", cfg.AppName)

	return func() {
		if err := profiler.Stop(); err != nil {
			logger.Warn("failed to stop profiler", "error", err)
		}
	}, nil
}
