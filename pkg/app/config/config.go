package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/womat/debug"
	"gopkg.in/yaml.v2"
	"tsic/pkg/raspberry"
	"tsic/pkg/tsic"
	"tsic/pkg/zacwire"
)

// Config defines the struct of global config and the struct of the configuration file.
// The configuration file is yaml, or toml if the file name ends with .toml.
// Command line flags in Flag overwrite the values of the file.
type Config struct {
	Gpio      int             `yaml:"gpio" toml:"gpio"`
	Driver    string          `yaml:"driver" toml:"driver"`
	Chip      string          `yaml:"chip" toml:"chip"`
	Bias      string          `yaml:"bias" toml:"bias"`
	Type      string          `yaml:"type" toml:"type"`
	Timing    TimingConfig    `yaml:"timing" toml:"timing"`
	Emulator  EmulatorConfig  `yaml:"emulator" toml:"emulator"`
	Flag      FlagConfig      `yaml:"-" toml:"-"`
	Debug     DebugConfig     `yaml:"debug" toml:"debug"`
	Webserver WebserverConfig `yaml:"webserver" toml:"webserver"`
	MQTT      MQTTConfig      `yaml:"mqtt" toml:"mqtt"`

	// TsicType and BiasValue are the parsed Type and Bias.
	TsicType  tsic.Type      `yaml:"-" toml:"-"`
	BiasValue raspberry.Bias `yaml:"-" toml:"-"`
}

// FlagConfig defines the configured flags (parameters)
type FlagConfig struct {
	ConfigFile string
	LogLevel   string
	// Gpio overrides the configured pin if >= 0.
	Gpio    int
	Type    string
	Driver  string
	Emulate bool
	Once    bool
	Timeout time.Duration
}

// TimingConfig defines the ZACWire thresholds in ticks (µs) and the watchdog in milliseconds.
type TimingConfig struct {
	PacketGap   uint32        `yaml:"packetgap" toml:"packetgap"`
	ByteGap     uint32        `yaml:"bytegap" toml:"bytegap"`
	WatchdogInt int           `yaml:"watchdog" toml:"watchdog"`
	Watchdog    time.Duration `yaml:"-" toml:"-"`
}

// EmulatorConfig defines the emulated sensor of the emulator driver.
type EmulatorConfig struct {
	Celsius     float64       `yaml:"celsius" toml:"celsius"`
	IntervalInt int           `yaml:"interval" toml:"interval"`
	Interval    time.Duration `yaml:"-" toml:"-"`
}

// WebserverConfig defines the struct of the webserver and webservice configuration and configuration file
type WebserverConfig struct {
	URL         string          `yaml:"url" toml:"url"`
	Webservices map[string]bool `yaml:"webservices" toml:"webservices"`
}

// MQTTConfig defines the struct of the mqtt client configuration and configuration file
type MQTTConfig struct {
	Connection  string        `yaml:"connection" toml:"connection"`
	ClientID    string        `yaml:"clientid" toml:"clientid"`
	Interval    time.Duration `yaml:"-" toml:"-"`
	IntervalInt int           `yaml:"interval" toml:"interval"`
	DeltaKelvin float64       `yaml:"deltakelvin" toml:"deltakelvin"`
	Topic       string        `yaml:"topic" toml:"topic"`
}

// DebugConfig defines the struct of the debug configuration and configuration file
type DebugConfig struct {
	File       io.WriteCloser `yaml:"-" toml:"-"`
	Flag       int            `yaml:"-" toml:"-"`
	FlagString string         `yaml:"flag" toml:"flag"`
	FileString string         `yaml:"file" toml:"file"`
}

func NewConfig() *Config {
	return &Config{
		Gpio:   4,
		Driver: raspberry.DriverGpiod,
		Chip:   "gpiochip0",
		Bias:   string(raspberry.BiasNone),
		Type:   "306",
		Timing: TimingConfig{
			PacketGap:   zacwire.DefaultTiming.PacketGap,
			ByteGap:     zacwire.DefaultTiming.ByteGap,
			WatchdogInt: int(zacwire.DefaultTiming.Watchdog / time.Millisecond),
		},
		Emulator: EmulatorConfig{
			Celsius:     21.5,
			IntervalInt: 100,
		},
		Flag: FlagConfig{Gpio: -1, Timeout: time.Second},
		Debug: DebugConfig{
			FileString: "stderr",
			FlagString: "standard",
		},
		Webserver: WebserverConfig{
			URL: "http://0.0.0.0:4000",
			Webservices: map[string]bool{
				"version":     true,
				"health":      true,
				"measurement": true,
				"measure":     true,
			},
		},
		MQTT: MQTTConfig{
			ClientID:    "tsic",
			IntervalInt: 60,
			DeltaKelvin: 0.5,
			Topic:       "/test/tsic",
		},
	}
}

func (c *Config) LoadConfig() error {
	if err := c.readConfigFile(); err != nil {
		return fmt.Errorf("error reading config file %q: %w", c.Flag.ConfigFile, err)
	}

	c.applyFlags()

	if err := c.setDebugConfig(); err != nil {
		return fmt.Errorf("debug config: %w", err)
	}

	c.MQTT.Interval = time.Duration(c.MQTT.IntervalInt) * time.Second
	c.Timing.Watchdog = time.Duration(c.Timing.WatchdogInt) * time.Millisecond
	c.Emulator.Interval = time.Duration(c.Emulator.IntervalInt) * time.Millisecond

	return c.validate()
}

// ZacwireTiming returns the configured thresholds of the decoder.
func (c *Config) ZacwireTiming() zacwire.Timing {
	return zacwire.Timing{
		PacketGap: c.Timing.PacketGap,
		ByteGap:   c.Timing.ByteGap,
		Watchdog:  c.Timing.Watchdog,
	}
}

func (c *Config) readConfigFile() error {
	if c.Flag.ConfigFile == "" {
		return nil
	}

	file, err := os.Open(c.Flag.ConfigFile)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	if strings.EqualFold(filepath.Ext(c.Flag.ConfigFile), ".toml") {
		_, err = toml.NewDecoder(file).Decode(c)
		return err
	}

	decoder := yaml.NewDecoder(file)
	if err = decoder.Decode(c); err != nil && err != io.EOF {
		return err
	}

	return nil
}

// applyFlags overwrites the configuration file by command line flags.
func (c *Config) applyFlags() {
	if c.Flag.LogLevel != "" {
		c.Debug.FlagString = c.Flag.LogLevel
	}
	if c.Flag.Gpio >= 0 {
		c.Gpio = c.Flag.Gpio
	}
	if c.Flag.Type != "" {
		c.Type = c.Flag.Type
	}
	if c.Flag.Driver != "" {
		c.Driver = c.Flag.Driver
	}
	if c.Flag.Emulate {
		c.Driver = raspberry.DriverEmulator
	}
}

func (c *Config) validate() (err error) {
	if c.TsicType, err = tsic.ParseType(c.Type); err != nil {
		return err
	}
	if c.BiasValue, err = raspberry.ParseBias(c.Bias); err != nil {
		return err
	}
	if err = c.ZacwireTiming().Validate(); err != nil {
		return err
	}
	if c.Driver == raspberry.DriverEmulator && c.Emulator.Interval <= c.Timing.Watchdog {
		return fmt.Errorf("%w: emulator interval %v must be greater than the watchdog", raspberry.ErrInvalidParam, c.Emulator.Interval)
	}

	return nil
}

func (c *Config) setDebugConfig() (err error) {
	// defines Debug section of global.Config
	switch c.Debug.FlagString {
	case "trace", "full":
		c.Debug.Flag = debug.Full
	case "debug":
		c.Debug.Flag = debug.Warning | debug.Info | debug.Error | debug.Fatal | debug.Debug
	case "standard":
		c.Debug.Flag = debug.Standard
	default:
		return fmt.Errorf("%w: log level %q", raspberry.ErrInvalidParam, c.Debug.FlagString)
	}

	switch c.Debug.FileString {
	case "stderr":
		c.Debug.File = os.Stderr
	case "stdout":
		c.Debug.File = os.Stdout
	default:
		if c.Debug.File, err = os.OpenFile(c.Debug.FileString, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666); err != nil {
			return
		}
	}

	return
}
