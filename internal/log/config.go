package log

// Config configures the global logger.
type Config struct {
	Level     string           `mapstructure:"level"`
	Pattern   string           `mapstructure:"pattern"`
	Time      string           `mapstructure:"time"`
	Appenders []AppenderConfig `mapstructure:"appenders"`
}

// AppenderConfig selects one output. Type is "console" or "file".
type AppenderConfig struct {
	Type string          `mapstructure:"type"`
	File FileAppenderOpt `mapstructure:",squash"`
}

const (
	DefaultPattern = "%time [%level] %field %msg%n"
	DefaultTime    = "2006-01-02 15:04:05.000"
)

// DefaultConfig logs info and above to stdout.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Pattern:   DefaultPattern,
		Time:      DefaultTime,
		Appenders: []AppenderConfig{{Type: "console"}},
	}
}
