package config // package config loads application configuration from environment variables

import (
    "log"     // log is used to report configuration errors and halt execution
    "os"      // os provides access to environment variables
    "strconv" // strconv converts strings to other types
    "time"    // time expresses the coordinator's durations
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and secrets, durations for the
// coordinator's timing knobs.
type Config struct {
    Env             string        // application environment (e.g. "dev", "prod")
    Port            string        // HTTP port to listen on
    DBUser          string        // database username
    DBPass          string        // database password (optional)
    DBHost          string        // database host address
    DBPort          string        // database port number
    DBName          string        // database name
    JWTSecret       string        // secret used to verify JWTs issued by the auth service
    HoldTTL         time.Duration // lifetime of a seat hold unless extended
    SweepInterval   time.Duration // how often the expiration sweeper runs
    DisconnectGrace time.Duration // delay between a disconnect and releasing its holds
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  The timing knobs
// fall back to the defaults the coordinator was designed around: 30s
// holds, a 2s sweep, a 3s disconnect grace window.
func Load() Config {
    return Config{
        Env:             must("APP_ENV"),      // environment (dev/test/prod)
        Port:            must("APP_PORT"),     // port to bind the HTTP server
        DBUser:          must("DB_USER"),      // database user
        DBPass:          os.Getenv("DB_PASS"), // database password (empty allowed)
        DBHost:          must("DB_HOST"),      // database host
        DBPort:          must("DB_PORT"),      // database port
        DBName:          must("DB_NAME"),      // database name
        JWTSecret:       must("JWT_SECRET"),   // secret used for verifying JWTs
        HoldTTL:         envSeconds("HOLD_TTL_SEC", 30),
        SweepInterval:   envSeconds("SWEEP_INTERVAL_SEC", 2),
        DisconnectGrace: envSeconds("DISCONNECT_GRACE_SEC", 3),
    }
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}

// envSeconds reads an optional integer variable expressed in seconds and
// returns it as a duration, falling back to the given default.  A value
// that does not parse as a positive integer is a fatal error rather than
// a silent fallback.
func envSeconds(key string, def int) time.Duration {
    s := os.Getenv(key)
    if s == "" {
        return time.Duration(def) * time.Second
    }
    n, err := strconv.Atoi(s)
    if err != nil || n <= 0 {
        log.Fatalf("invalid seconds value for %s: %q", key, s)
    }
    return time.Duration(n) * time.Second
}
