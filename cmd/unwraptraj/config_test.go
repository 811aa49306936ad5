/*
 * config_test.go, part of gounwrap.
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
	"math"
	"os"
	"path/filepath"
	"testing"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaultConfig(Te *testing.T) {
	c, err := LoadConfig("", env(nil))
	if err != nil {
		Te.Fatal(err)
	}
	if !math.IsInf(c.UpTo, 1) || c.LogLevel != "info" || c.pbc() != nil || c.Is2D != nil {
		Te.Errorf("unexpected defaults: %+v", c)
	}
	if err := c.Validate(); err == nil {
		Te.Error("configuration without records accepted")
	}
	c.Records = "x.unwr"
	if err := c.Validate(); err != nil {
		Te.Error(err)
	}
}

func TestConfigPriority(Te *testing.T) {
	name := filepath.Join(Te.TempDir(), "unwrap.yaml")
	yml := "pbc: [true, true, false]\ndt: 0.5\nrecords: file.unwr\nlog_level: debug\nupto: 20\n"
	if err := os.WriteFile(name, []byte(yml), 0644); err != nil {
		Te.Fatal(err)
	}
	c, err := LoadConfig(name, env(map[string]string{"UNWRAP_RECORDS": "env.unwr", "UNWRAP_2D": "1", "UNWRAP_UPTO": "10"}))
	if err != nil {
		Te.Fatal(err)
	}
	if p := c.pbc(); p == nil || *p != [3]bool{true, true, false} {
		Te.Errorf("pbc not read from the file: %v", c.PBC)
	}
	if c.Dt != 0.5 || c.LogLevel != "debug" {
		Te.Errorf("file values lost: %+v", c)
	}
	if c.Records != "env.unwr" || c.UpTo != 10 || c.Is2D == nil || !*c.Is2D {
		Te.Errorf("environment did not override the file: %+v", c)
	}
	if err := c.Validate(); err != nil {
		Te.Error(err)
	}
	if _, err := LoadConfig(filepath.Join(Te.TempDir(), "missing.yaml"), env(nil)); err == nil {
		Te.Error("missing config file accepted")
	}
	if _, err := LoadConfig("", env(map[string]string{"UNWRAP_DT": "fast"})); err == nil {
		Te.Error("bad UNWRAP_DT accepted")
	}
	if err := os.WriteFile(name, []byte("records: file.unwr\nrequire_bonds: true\n"), 0644); err != nil {
		Te.Fatal(err)
	}
	if _, err := LoadConfig(name, env(nil)); err == nil {
		Te.Error("unknown setting require_bonds accepted")
	}
	if err := os.WriteFile(name, nil, 0644); err != nil {
		Te.Fatal(err)
	}
	if c, err := LoadConfig(name, env(nil)); err != nil || c.LogLevel != "info" {
		Te.Errorf("empty config file: %+v, %v", c, err)
	}
}

func TestParsePBC(Te *testing.T) {
	for _, s := range []string{"1 1 0", "true,true,false", "1, 1, 0"} {
		p, err := parsePBC(s)
		if err != nil {
			Te.Errorf("%q: %v", s, err)
			continue
		}
		if !p[0] || !p[1] || p[2] {
			Te.Errorf("%q read as %v", s, p)
		}
	}
	for _, s := range []string{"1 1", "1 1 0 1", "yes no yes"} {
		if _, err := parsePBC(s); err == nil {
			Te.Errorf("%q accepted", s)
		}
	}
}

func TestValidate(Te *testing.T) {
	bad := []Config{
		{Records: "r", PBC: []bool{true}, LogLevel: "info"},
		{Records: "r", PBC: []bool{false, false, false}, LogLevel: "info"},
		{Records: "r", Dt: -1, LogLevel: "info"},
		{Records: "r", UpTo: math.NaN(), LogLevel: "info"},
		{Records: "r", LogLevel: "loud"},
	}
	for i, c := range bad {
		if err := c.Validate(); err == nil {
			Te.Errorf("config %d accepted: %+v", i, c)
		}
	}
}
