// Package config loads the build-time configuration of a ranging node. On
// a real embedded target these are compile-time constants; the host-side
// simulation and test harness load them from a YAML document instead, so
// one binary can boot several differently-configured nodes. The parser
// uses gopkg.in/yaml.v3.
package config

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dstwr/twrcore/mac"
)

// Config mirrors the build-time configuration table of a ranging node.
type Config struct {
	OurID uint8 `yaml:"our_id"`

	NumDevices int `yaml:"num_devices"`

	DelayTimeUS int `yaml:"delay_time_us"`

	DelayUntilAssumedLostUS int `yaml:"delay_until_assumed_lost_us"`

	// SlotMarginPerDeviceUS is the per-device scaling term ("k" in the
	// slot-timeout expression DELAY_UNTIL_ASSUMED_LOST + curNumDevices * k).
	SlotMarginPerDeviceUS int `yaml:"slot_margin_per_device_us"`

	EvictionThreshold int `yaml:"eviction_threshold"`
}

// Defaults returns a Config with empirically-tuned constants suited to
// long-range UWB ranging, for every field except OurID and NumDevices,
// which a caller must always set explicitly.
func Defaults() Config {
	return Config{
		DelayTimeUS:             2000,
		DelayUntilAssumedLostUS: 15000,
		SlotMarginPerDeviceUS:   1000,
		EvictionThreshold:       mac.EvictionThreshold,
	}
}

// Load parses a YAML document into a Config, filling any field the
// document omits from Defaults().
func Load(r io.Reader) (Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the constraints placed on these fields.
func (c Config) Validate() error {
	if c.OurID == 0 || c.OurID == 255 {
		return fmt.Errorf("config: our_id must be in 1..254, got %d", c.OurID)
	}
	if c.NumDevices <= 0 {
		return fmt.Errorf("config: num_devices must be positive, got %d", c.NumDevices)
	}
	if c.DelayTimeUS <= 0 {
		return fmt.Errorf("config: delay_time_us must be positive, got %d", c.DelayTimeUS)
	}
	if c.EvictionThreshold <= 0 {
		return fmt.Errorf("config: eviction_threshold must be positive, got %d", c.EvictionThreshold)
	}
	return nil
}

// Role derives the tag/anchor role from OurID.
func (c Config) Role() mac.Role { return mac.RoleForID(c.OurID) }

func (c Config) DelayTime() time.Duration {
	return time.Duration(c.DelayTimeUS) * time.Microsecond
}

func (c Config) DelayUntilAssumedLost() time.Duration {
	return time.Duration(c.DelayUntilAssumedLostUS) * time.Microsecond
}

func (c Config) SlotMarginPerDevice() time.Duration {
	return time.Duration(c.SlotMarginPerDeviceUS) * time.Microsecond
}

// DeriveSlotTimeout computes a DELAY_UNTIL_ASSUMED_LOST estimate from radio
// parameters instead of a hand-tuned constant: a slot must outlast one
// full preamble plus the time to clock out a maximum-size frame at the
// configured bit rate, with a fixed margin for host processing latency.
func DeriveSlotTimeout(preambleSymbols int, bitRateBPS float64, maxFrameBytes int, margin time.Duration) time.Duration {
	if bitRateBPS <= 0 {
		return margin
	}
	frameBits := float64(maxFrameBytes * 8)
	frameAirTime := time.Duration(frameBits / bitRateBPS * float64(time.Second))
	preambleTime := time.Duration(float64(preambleSymbols) / bitRateBPS * float64(time.Second))
	return preambleTime + frameAirTime + margin
}
