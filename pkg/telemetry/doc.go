// Package telemetry provides structured logging, Prometheus metrics
// and OpenTelemetry tracing for vapordeck.
//
// The three concerns share one Config and are bundled in a Telemetry
// facade that the CLI wires at startup:
//
//	tel, err := telemetry.New(telemetry.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	logger := tel.Logger.Component("store")
//	logger.Zerolog().Info().Str("instance", "demo-1").Msg("record saved")
//
// Metrics implements the lifecycle engine's observer hook, so verb
// counts and latencies are recorded without the engine importing this
// package.
package telemetry
