package types

import (
	"os"

	"github.com/juju/errors"
	"github.com/mcuadros/go-defaults"
	"gopkg.in/yaml.v3"
)

func NewOptions() *Options {
	opts := &Options{}
	defaults.SetDefaults(opts)
	return opts
}

type Options struct {
	/**
	 * default: "nop:"
	 * a sync url with this prefix means the node has no transport of its
	 * own and the registration url is used instead.
	 */
	NoneProtocol string `default:"nop:"`
	/**
	 * default: "ext:"
	 * a sync url with this prefix is resolved by the extension handler
	 * named by its host.
	 */
	ExtensionProtocol string `default:"ext:"`
	/**
	 * default: "ok", the ack value of a batch that loaded successfully.
	 */
	AckOKValue string `default:"ok"`
	/**
	 * default: "UTF-8", the charset ack values are percent-encoded in.
	 */
	AckCharset string `default:"UTF-8"`
	/**
	 * default: 16, number of concurrent store writes when publishing
	 * tracker snapshots.
	 */
	PublishConcurrency int `default:"16"`
	/**
	 * default: false, only set it to true when doing testing or developing.
	 */
	MemStore bool `default:"false"`

	// StaticExtensions maps extension handler names to concrete urls.
	StaticExtensions map[string]string

	// If both MemStore and PostgresConfig are set, PostgresConfig takes precedence
	PostgresConfig *PostgresConfig
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"` // disable, require, verify-ca, verify-full
}

type Option func(*Options)

func WithProtocols(noneProtocol, extensionProtocol string) Option {
	return func(opts *Options) {
		opts.NoneProtocol = noneProtocol
		opts.ExtensionProtocol = extensionProtocol
	}
}

func WithAckOKValue(value string) Option {
	return func(opts *Options) {
		opts.AckOKValue = value
	}
}

func WithAckCharset(charset string) Option {
	return func(opts *Options) {
		opts.AckCharset = charset
	}
}

func SetPublishConcurrency(concurrency int) Option {
	return func(opts *Options) {
		opts.PublishConcurrency = concurrency
	}
}

func EnableMemStore() Option {
	return func(opts *Options) {
		opts.MemStore = true
	}
}

// WithStaticExtension registers a fixed url for the named extension.
func WithStaticExtension(name, url string) Option {
	return func(opts *Options) {
		if opts.StaticExtensions == nil {
			opts.StaticExtensions = make(map[string]string)
		}
		opts.StaticExtensions[name] = url
	}
}

// WithPostgresConfig configures the engine to persist snapshots in PostgreSQL
func WithPostgresConfig(config *PostgresConfig) Option {
	return func(opts *Options) {
		opts.PostgresConfig = config
	}
}

// Config is the file form of Options.
type Config struct {
	NoneProtocol       string            `yaml:"none_protocol"`
	ExtensionProtocol  string            `yaml:"extension_protocol"`
	AckOKValue         string            `yaml:"ack_ok_value"`
	AckCharset         string            `yaml:"ack_charset"`
	PublishConcurrency int               `yaml:"publish_concurrency"`
	MemStore           bool              `yaml:"mem_store"`
	Extensions         map[string]string `yaml:"extensions"`
	Postgres           *PostgresConfig   `yaml:"postgres"`
}

func ParseConfig(b []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, errors.Annotatef(err, "failed to parse config")
	}
	return c, nil
}

func LoadConfigFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to read config %s", path)
	}
	return ParseConfig(b)
}

// Options converts the file values into options; unset values keep
// their defaults.
func (c *Config) Options() []Option {
	opts := make([]Option, 0)
	if c.NoneProtocol != "" || c.ExtensionProtocol != "" {
		none, ext := c.NoneProtocol, c.ExtensionProtocol
		opts = append(opts, func(o *Options) {
			if none != "" {
				o.NoneProtocol = none
			}
			if ext != "" {
				o.ExtensionProtocol = ext
			}
		})
	}
	if c.AckOKValue != "" {
		opts = append(opts, WithAckOKValue(c.AckOKValue))
	}
	if c.AckCharset != "" {
		opts = append(opts, WithAckCharset(c.AckCharset))
	}
	if c.PublishConcurrency > 0 {
		opts = append(opts, SetPublishConcurrency(c.PublishConcurrency))
	}
	if c.MemStore {
		opts = append(opts, EnableMemStore())
	}
	for name, url := range c.Extensions {
		opts = append(opts, WithStaticExtension(name, url))
	}
	if c.Postgres != nil {
		opts = append(opts, WithPostgresConfig(c.Postgres))
	}
	return opts
}
