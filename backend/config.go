package backend

import (
	"fmt"

	"github.com/c360/blockstore/errors"
)

const (
	// DefaultBlockSize is used by media that need an expected read length
	// when the caller does not provide one.
	DefaultBlockSize = 4096

	// defaultQueueSlack is added to the worker count to size the bounded
	// queues: enough headroom to keep workers fed, small enough that a
	// stalled medium backpressures producers quickly.
	defaultQueueSlack = 20

	defaultSimultaneousWrites = 1
	defaultSimultaneousReads  = 1
)

// Config holds construction-time configuration for a Backend. Worker counts
// are fixed for the backend's lifetime; there is no dynamic scaling.
type Config struct {
	// SimultaneousWrites is the writer pool size (default 1).
	SimultaneousWrites int `json:"simultaneous_writes"`

	// SimultaneousReads is the reader pool size (default 1).
	SimultaneousReads int `json:"simultaneous_reads"`

	// BandwidthWrite limits medium writes in bytes per second. 0 = unlimited.
	BandwidthWrite int64 `json:"bandwidth_write"`

	// BandwidthRead limits medium reads in bytes per second. 0 = unlimited.
	BandwidthRead int64 `json:"bandwidth_read"`

	// BlockSize is the default expected block length for media that need it.
	BlockSize int `json:"block_size"`

	// WriteQueueSlack is the write queue capacity beyond the writer count.
	WriteQueueSlack int `json:"write_queue_slack"`

	// ResultQueueSlack is the read-result queue capacity beyond the reader
	// count.
	ResultQueueSlack int `json:"result_queue_slack"`
}

// DefaultConfig returns the default backend configuration: one writer, one
// reader, unlimited bandwidth.
func DefaultConfig() Config {
	return Config{
		SimultaneousWrites: defaultSimultaneousWrites,
		SimultaneousReads:  defaultSimultaneousReads,
		BlockSize:          DefaultBlockSize,
		WriteQueueSlack:    defaultQueueSlack,
		ResultQueueSlack:   defaultQueueSlack,
	}
}

// Validate checks the configuration for errors. Zero values are legal and
// replaced with defaults at construction; negatives are not.
func (c *Config) Validate() error {
	for name, v := range map[string]int{
		"simultaneous_writes": c.SimultaneousWrites,
		"simultaneous_reads":  c.SimultaneousReads,
		"block_size":          c.BlockSize,
		"write_queue_slack":   c.WriteQueueSlack,
		"result_queue_slack":  c.ResultQueueSlack,
	} {
		if v < 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
				fmt.Sprintf("%s cannot be negative", name))
		}
	}
	if c.BandwidthRead < 0 || c.BandwidthWrite < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"bandwidth cannot be negative")
	}
	return nil
}

// withDefaults returns a copy with zero values replaced by defaults.
func (c Config) withDefaults() Config {
	if c.SimultaneousWrites == 0 {
		c.SimultaneousWrites = defaultSimultaneousWrites
	}
	if c.SimultaneousReads == 0 {
		c.SimultaneousReads = defaultSimultaneousReads
	}
	if c.BlockSize == 0 {
		c.BlockSize = DefaultBlockSize
	}
	if c.WriteQueueSlack == 0 {
		c.WriteQueueSlack = defaultQueueSlack
	}
	if c.ResultQueueSlack == 0 {
		c.ResultQueueSlack = defaultQueueSlack
	}
	return c
}
