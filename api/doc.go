/*
Package api holds configuration shared by the HTTP-facing components of the
session authorization system.

HTTPServerConfig describes how the key-server process listens: API and metrics
addresses, optional TLS, timeouts and the drain/shutdown sequence. The cmd
binaries fill it from urfave/cli flags (cmd/flags.ConfigureServer) and hand it
to httpserver.New.

# Shutdown Sequence

 1. GET /drain marks the server not ready; /readyz starts returning 503
 2. DrainDuration elapses so load balancers stop routing new requests
 3. in-flight requests get GracefulShutdownDuration to complete
*/
package api
