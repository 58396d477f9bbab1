/*
Package httpserver runs the key-server HTTP API.

The server wraps any RouteRegistrar (in practice keyserver.Handler) with
request logging from flashbots/go-utils and the operational endpoints every
deployment expects:

  - GET /livez    always 200 while the process runs
  - GET /readyz   200 when ready, 503 while draining
  - GET /drain    marks the server not ready
  - GET /undrain  marks the server ready again
  - /debug/pprof  when EnablePprof is set

Metrics are served by a separate metrics.MetricsServer on MetricsAddr so they
can be kept off the public listener. When HTTPServerConfig.TLSCertificate is
set the API listener serves HTTPS.

# Usage

	srv, err := httpserver.New(cfg, keyserver.NewHandler(service, log), metricsSrv)
	srv.RunInBackground()
	<-ctx.Done()
	srv.Drain(context.Background())
	srv.Shutdown()
*/
package httpserver
