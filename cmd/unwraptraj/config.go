/*
 * config.go, part of gounwrap.
 *
 * Copyright 2024 Raul Mera <rmera{at}chemDOThelsinkiDOTfi>
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the settings of unwraptraj. They are taken, in increasing order of priority,
// from the defaults, a YAML file, UNWRAP_* environment variables and the command line flags.
type Config struct {
	PBC         []bool  `yaml:"pbc"` //empty to use the trajectory header
	Is2D        *bool   `yaml:"is_2d"`
	Dt          float64 `yaml:"dt"` //0 to use the trajectory header
	Records     string  `yaml:"records"`
	UpTo        float64 `yaml:"upto"`
	MetricsAddr string  `yaml:"metrics_addr"`
	LogLevel    string  `yaml:"log_level"`
	Interactive bool    `yaml:"interactive"`
}

// DefaultConfig scans whole trajectories and logs at the info level.
func DefaultConfig() Config {
	return Config{UpTo: math.Inf(1), LogLevel: "info"}
}

// LoadConfig returns the defaults overridden by the YAML file path, if path is not empty,
// and then by the environment, as returned by getenv.
func LoadConfig(path string, getenv func(string) string) (Config, error) {
	c := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("failed to read the config file: %w", err)
		}
		//unknown keys are errors, so settings the program does not have are not silently ignored.
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
			return c, fmt.Errorf("failed to parse the config file %s: %w", path, err)
		}
	}
	if err := c.fromEnv(getenv); err != nil {
		return c, err
	}
	return c, nil
}

func (c *Config) fromEnv(getenv func(string) string) error {
	if v := getenv("UNWRAP_PBC"); v != "" {
		p, err := parsePBC(v)
		if err != nil {
			return fmt.Errorf("UNWRAP_PBC: %w", err)
		}
		c.PBC = p
	}
	if v := getenv("UNWRAP_2D"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("UNWRAP_2D: %w", err)
		}
		c.Is2D = &b
	}
	for _, f := range []struct {
		key string
		dst *float64
	}{{"UNWRAP_DT", &c.Dt}, {"UNWRAP_UPTO", &c.UpTo}} {
		if v := getenv(f.key); v != "" {
			x, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", f.key, err)
			}
			*f.dst = x
		}
	}
	if v := getenv("UNWRAP_RECORDS"); v != "" {
		c.Records = v
	}
	if v := getenv("UNWRAP_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := getenv("UNWRAP_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("UNWRAP_INTERACTIVE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("UNWRAP_INTERACTIVE: %w", err)
		}
		c.Interactive = b
	}
	return nil
}

// parsePBC reads three periodicity flags, as in "1 1 0" or "true,true,false".
func parsePBC(s string) ([]bool, error) {
	f := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' })
	if len(f) != 3 {
		return nil, fmt.Errorf("expected 3 periodicity flags, got %q", s)
	}
	p := make([]bool, 3)
	for i, v := range f {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("bad periodicity flag %q", v)
		}
		p[i] = b
	}
	return p, nil
}

// Validate checks the final configuration.
func (c Config) Validate() error {
	if c.Records == "" {
		return fmt.Errorf("no records file given")
	}
	if len(c.PBC) != 0 && len(c.PBC) != 3 {
		return fmt.Errorf("pbc needs 3 flags, got %d", len(c.PBC))
	}
	if len(c.PBC) == 3 && !c.PBC[0] && !c.PBC[1] && !c.PBC[2] {
		return fmt.Errorf("at least one cell axis must be periodic")
	}
	if c.Dt < 0 || math.IsNaN(c.Dt) || math.IsInf(c.Dt, 0) {
		return fmt.Errorf("invalid time step %v", c.Dt)
	}
	if math.IsNaN(c.UpTo) {
		return fmt.Errorf("invalid scan limit")
	}
	if _, err := c.level(); err != nil {
		return err
	}
	return nil
}

func (c Config) level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return l, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return l, nil
}

// pbc returns the periodicity flags as an array, or nil if they were not set.
func (c Config) pbc() *[3]bool {
	if len(c.PBC) != 3 {
		return nil
	}
	return &[3]bool{c.PBC[0], c.PBC[1], c.PBC[2]}
}

// Logger returns a text logger on stderr at the configured level.
func (c Config) Logger() *slog.Logger {
	l, err := c.level()
	if err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
