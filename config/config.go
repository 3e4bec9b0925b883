package config

import (
	"errors"
	"fmt"
	"os"
	"peermesh/datamodel/peer"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// Duration is a time.Duration that reads and writes as "5s" in JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Plain numbers are nanoseconds
		var n int64
		if nerr := json.Unmarshal(data, &n); nerr != nil {
			return err
		}
		*d = Duration(n)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the configuration of a peermesh node
type Config struct {
	// Default config file location
	configFile string

	Node struct {
		NodeID string `json:"id"`
	} `json:"node"`

	// Network settings. An empty RPC address disables the CBOR RPC listener.
	Network struct {
		HTTPListenAddress string `json:"http"`
		RPCListenAddress  string `json:"rpc"`
		AdvertisedAddress string `json:"advertise"`
	} `json:"network"`

	// An empty peer index path keeps the peer set in memory only.
	DataStore struct {
		PeerIndexPath string `json:"peers"`
	} `json:"datastore"`

	Registry struct {
		AllowSelf         bool     `json:"allow_self"`
		StatusLogInterval Duration `json:"status_log_interval"`
	} `json:"registry"`

	Bootstrap struct {
		ReadyTimeout   Duration `json:"ready_timeout"`
		RequestTimeout Duration `json:"request_timeout"`
		PollInterval   Duration `json:"poll_interval"`
	} `json:"bootstrap"`

	Log struct {
		Filename   string `json:"filename"`
		MaxSize    int    `json:"max_size"` // megabytes
		MaxBackups int    `json:"max_backups"`
		MaxAge     int    `json:"max_age"` // days
		UseStdOut  bool   `json:"stdout"`
	} `json:"log"`
}

// NewEmptyConfig generates a new configuration with default settings
func NewEmptyConfig(configFile string) *Config {
	cfg := &Config{}

	cfg.configFile = configFile

	cfg.Network.HTTPListenAddress = ":5000"
	cfg.Network.RPCListenAddress = ":6000"

	cfg.Registry.AllowSelf = false
	cfg.Registry.StatusLogInterval = Duration(time.Minute)

	cfg.Bootstrap.ReadyTimeout = Duration(30 * time.Second)
	cfg.Bootstrap.RequestTimeout = Duration(10 * time.Second)
	cfg.Bootstrap.PollInterval = Duration(2 * time.Second)

	cfg.Log.MaxSize = 10
	cfg.Log.MaxBackups = 3
	cfg.Log.MaxAge = 28
	cfg.Log.UseStdOut = true

	return cfg
}

func NewConfigFromFile(configFile string) (*Config, error) {
	cfg := NewEmptyConfig(configFile)
	if err := cfg.Load(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) File() string {
	return c.configFile
}

// Save saves the configuration to a file
func (c *Config) Save() error {
	log.Infof("Saving config to %s", c.configFile)

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.configFile, data, 0644)
}

func (c *Config) Load() error {
	log.Infof("Loading config from %s", c.configFile)
	data, err := os.ReadFile(c.configFile)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%s: %w", c.configFile, err)
	}

	return nil
}

// Validate fills in derived defaults and rejects unusable settings.
func (c *Config) Validate() error {
	c.Node.NodeID = strings.TrimSpace(c.Node.NodeID)
	if c.Node.NodeID == "" {
		c.Node.NodeID = DefaultNodeID()
	}

	if c.Network.HTTPListenAddress == "" {
		return errors.New("network.http must be set")
	}

	if c.Network.AdvertisedAddress != "" {
		a, err := peer.ParseAddress(c.Network.AdvertisedAddress)
		if err != nil {
			return fmt.Errorf("network.advertise: %w", err)
		}
		c.Network.AdvertisedAddress = a.String()
	}

	if c.Registry.StatusLogInterval < 0 {
		return fmt.Errorf("registry.status_log_interval must not be negative (%v)", c.Registry.StatusLogInterval.Std())
	}

	if c.Bootstrap.ReadyTimeout <= 0 {
		c.Bootstrap.ReadyTimeout = Duration(30 * time.Second)
	}
	if c.Bootstrap.RequestTimeout <= 0 {
		c.Bootstrap.RequestTimeout = Duration(10 * time.Second)
	}
	if c.Bootstrap.PollInterval <= 0 {
		c.Bootstrap.PollInterval = Duration(2 * time.Second)
	}
	if c.Bootstrap.PollInterval > c.Bootstrap.ReadyTimeout {
		return fmt.Errorf("bootstrap.poll_interval (%v) exceeds bootstrap.ready_timeout (%v)",
			c.Bootstrap.PollInterval.Std(), c.Bootstrap.ReadyTimeout.Std())
	}

	if c.Log.Filename == "" && !c.Log.UseStdOut {
		return errors.New("log.filename must be set when log.stdout is disabled")
	}

	return nil
}

// DefaultNodeID returns the hostname, or a random id if the hostname is unavailable.
func DefaultNodeID() string {
	if h, err := osHostname(); err == nil && h != "" {
		return h
	}
	return "node-" + uuid.NewString()[:8]
}

// osHostname exists for testability.
var osHostname = os.Hostname
