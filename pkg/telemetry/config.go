package telemetry

type Config struct {
	// OTLP exporter settings. Tracing is disabled when the host is empty.
	OTLP OTLP `yaml:"otlp"`
	// The service name to report traces under.
	Service string `yaml:"service"`
}

type OTLP struct {
	// The endpoint of the OTLP collector. Must not contain any URL path.
	Host string `yaml:"host"`
	// Secure indicates whether to use TLS when connecting to the OTLP
	// endpoint. HTTPS is used if enabled, HTTP otherwise.
	Secure bool `yaml:"secure"`
}

// Enabled reports whether an exporter endpoint has been configured.
func (c Config) Enabled() bool { return c.OTLP.Host != "" }
