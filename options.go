package sentry

import (
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ClientOptions that configures a SDK Client.
type ClientOptions struct {
	// The DSN to use. If the DSN is not set, the client is effectively
	// disabled.
	Dsn string `yaml:"dsn"`
	// In debug mode, the debug information is printed to stderr to help you
	// understand what sentry is doing.
	Debug bool `yaml:"debug"`
	// Configures whether to record and send client reports about dropped
	// payloads.
	DisableClientReports bool `yaml:"disable_client_reports"`
	// Capacity of each per-category buffer used by Capture. Defaults to 100.
	BufferSize int `yaml:"buffer_size"`
	// When a category buffer is full, drop the incoming item instead of the
	// oldest buffered one.
	DropNewest bool `yaml:"drop_newest"`
	// Capacity of the transport send queue. Defaults to 1000.
	QueueSize int `yaml:"queue_size"`
	// How often the transport retries network and server errors. Negative
	// values disable retries. Defaults to 3.
	MaxRetries int `yaml:"max_retries"`
	// HTTP request timeout. Defaults to 30 seconds.
	SendTimeout time.Duration `yaml:"send_timeout"`
	// An optional HTTP proxy to use.
	// This will default to the HTTP_PROXY environment variable.
	HTTPProxy string `yaml:"http_proxy"`
	// An optional HTTPS proxy to use.
	// This will default to the HTTPS_PROXY environment variable.
	// HTTPS_PROXY takes precedence over HTTP_PROXY.
	HTTPSProxy string `yaml:"https_proxy"`

	// Writer used for debug logging. Defaults to os.Stderr.
	DebugWriter io.Writer `yaml:"-"`
	// The transport to use. Defaults to an asynchronous HTTP transport.
	Transport Transport `yaml:"-"`
	// The HTTP client used by the default transport. When set, HTTPTransport,
	// HTTPProxy, HTTPSProxy and CaCerts are ignored.
	HTTPClient *http.Client `yaml:"-"`
	// An optional set of SSL certificates to use.
	CaCerts *x509.CertPool `yaml:"-"`
	// An optional HTTP transport used by the default HTTP client.
	HTTPTransport http.RoundTripper `yaml:"-"`
}

// LoadOptions reads ClientOptions from a YAML file. Durations are written as
// Go duration strings, for example "5s".
func LoadOptions(path string) (ClientOptions, error) {
	var options ClientOptions

	data, err := os.ReadFile(path)
	if err != nil {
		return options, fmt.Errorf("sentry: reading options: %w", err)
	}
	if err := yaml.Unmarshal(data, &options); err != nil {
		return options, fmt.Errorf("sentry: parsing options %s: %w", path, err)
	}
	if err := options.validate(); err != nil {
		return options, err
	}
	return options, nil
}

func (o ClientOptions) validate() error {
	switch {
	case o.BufferSize < 0:
		return fmt.Errorf("sentry: buffer_size must not be negative, got %d", o.BufferSize)
	case o.QueueSize < 0:
		return fmt.Errorf("sentry: queue_size must not be negative, got %d", o.QueueSize)
	case o.SendTimeout < 0:
		return fmt.Errorf("sentry: send_timeout must not be negative, got %v", o.SendTimeout)
	}
	return nil
}
