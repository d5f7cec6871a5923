package httpapi

import "time"

// maxBodyBytes controls the maximum allowed request body size for JSON
// endpoints. Default 1 MiB.
var maxBodyBytes int64 = 1 << 20

// SetMaxBodyBytes overrides the /infer request body size limit; n<=0
// resets to the default.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 1 << 20
		return
	}
	maxBodyBytes = n
}

// inferMaxWait holds a configured admission wait. No handler reads it:
// slot waits are bounded by FleetService.MaxWait for pipelines and by
// ManagerConfig.MaxWait for bare-model calls.
var inferMaxWait = 30 * time.Second

// SetInferMaxWait overrides the stored inferMaxWait value; d<=0 resets
// it to the 30s default.
func SetInferMaxWait(d time.Duration) {
	if d <= 0 {
		d = 30 * time.Second
	}
	inferMaxWait = d
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
