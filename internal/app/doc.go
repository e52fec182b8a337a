// Package app wires configuration, observability, services and HTTP
// handlers into a runnable server and manages its lifecycle.
//
// # Initialization Flow
//
//	1. Load configuration (defaults, YAML file, SPC_* environment)
//	2. Initialize logging and OpenTelemetry
//	3. Create metrics, the result cache and the SPC service
//	4. Set up middleware and routes
//	5. Start the HTTP server
//
// # Usage
//
//	application, err := app.NewApplication()
//	if err != nil {
//	    return err
//	}
//	return application.Run()
//
// Run blocks until SIGINT or SIGTERM, then shuts the server down, stops the
// cache janitor and flushes telemetry. Initialization errors are returned
// to the caller; the package never calls os.Exit.
package app
