package sparsetile

// BuildOption is a functional option for configuring a Builder.
type BuildOption func(*buildConfig)

type buildConfig struct {
	workers     int
	multiColumn bool
	compression Compression
	keyPrefix   string
	logger      *Logger
	metrics     *Metrics
}

func defaultBuildConfig() *buildConfig {
	return &buildConfig{
		workers: 1, // Single-threaded; use WithWorkers(n) to parallelize
		logger:  NoopLogger(),
	}
}

// WithWorkers sets the number of goroutines used inside each Ingest and
// Finalize call. Values below 1 mean 1.
func WithWorkers(n int) BuildOption {
	return func(c *buildConfig) {
		c.workers = max(n, 1)
	}
}

// WithMultiColumn stores tiles column-major. Finalize only computes
// feature block positions for builders created with this option.
func WithMultiColumn() BuildOption {
	return func(c *buildConfig) {
		c.multiColumn = true
	}
}

// WithCompression sets the codec applied to stored payloads.
func WithCompression(comp Compression) BuildOption {
	return func(c *buildConfig) {
		c.compression = comp
	}
}

// WithKeyPrefix namespaces every stored key, e.g. "epoch-3/".
func WithKeyPrefix(prefix string) BuildOption {
	return func(c *buildConfig) {
		c.keyPrefix = prefix
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *Logger) BuildOption {
	return func(c *buildConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics reports to m. See NewMetrics.
func WithMetrics(m *Metrics) BuildOption {
	return func(c *buildConfig) {
		c.metrics = m
	}
}
