package config

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultAddress binds every interface.
	DefaultAddress = "0.0.0.0"

	// DefaultPort is the listening port.
	DefaultPort = 5678

	// DefaultRoot is the server root directory, relative to the working
	// directory of the process.
	DefaultRoot = "server"

	// DefaultNickname decorates the prompt until a client runs `nick`.
	DefaultNickname = "user"

	// DefaultReadBufferSize is the size of the single read buffer the
	// event loop shares across connections.
	DefaultReadBufferSize = 512

	// DefaultMaxLineLength caps a single command line.
	DefaultMaxLineLength = 4096

	// DefaultMaxFileSize caps what `cat` and `sum` read inside the loop.
	DefaultMaxFileSize = 1 << 20

	// DefaultBacklog is the listen(2) backlog.
	DefaultBacklog = 128

	// DefaultBindRetries is how many times binding is attempted while the
	// address is still in use by a previous process.
	DefaultBindRetries = 5

	// DefaultVerbose logs lifecycle events but not per-command detail.
	DefaultVerbose = 1
)

// Default returns a Config populated with the defaults above.
func Default() *Config {
	return &Config{
		Address:        DefaultAddress,
		Port:           DefaultPort,
		Root:           DefaultRoot,
		Nickname:       DefaultNickname,
		ReadBufferSize: DefaultReadBufferSize,
		MaxLineLength:  DefaultMaxLineLength,
		MaxFileSize:    DefaultMaxFileSize,
		Backlog:        DefaultBacklog,
		BindRetries:    DefaultBindRetries,
		Verbose:        DefaultVerbose,
	}
}
