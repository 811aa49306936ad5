/*
 * cmd_records.go, part of gounwrap.
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
	"encoding/json"
	"fmt"
	"math"

	unwrap "github.com/rmera/gounwrap"
	"github.com/rmera/gounwrap/crossplot"
	"github.com/spf13/cobra"
)

func loadStore() (*unwrap.Store, error) {
	s := unwrap.NewStore()
	if err := s.Load(cfg.Records); err != nil {
		return nil, err
	}
	return s, nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	s, err := loadStore()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if t := s.ProcessedUpTo(); math.IsInf(t, -1) {
		fmt.Fprintln(out, "Nothing scanned")
	} else {
		fmt.Fprintf(out, "Scanned up to time %g\n", t)
	}
	fmt.Fprintf(out, "%d crossings, %d cell flips\n", s.NumCrossings(), s.NumFlips())
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func runPlot(cmd *cobra.Command, args []string) error {
	s, err := loadStore()
	if err != nil {
		return err
	}
	if err := crossplot.Timeline(s, flagTitle, flagPlotOut); err != nil {
		return err
	}
	cfg.Logger().Info("Timeline plot written", "file", flagPlotOut)
	return nil
}
