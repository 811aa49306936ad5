/*
 * cmd_apply.go, part of gounwrap.
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
	"fmt"
	"os"
	"os/signal"

	unwrap "github.com/rmera/gounwrap"
	"github.com/spf13/cobra"
)

func runApply(cmd *cobra.Command, args []string) error {
	log := cfg.Logger()
	defer serveMetrics(cfg.MetricsAddr, log)()
	if _, err := os.Stat(cfg.Records); err != nil {
		return fmt.Errorf("records are needed to unwrap, run scan first: %w", err)
	}
	state, src, err := openState(args[0], true)
	if err != nil {
		return err
	}
	defer src.Close()
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	first, err := src.ReadFrame(ctx, 0)
	if err != nil {
		return err
	}
	w, err := createWriter(flagOut, src, first.Cell != nil)
	if err != nil {
		return err
	}
	written := 0
	for i := 0; i < src.NumFrames(); i++ {
		if err := ctx.Err(); err != nil {
			w.Close()
			return err
		}
		f, err := src.ReadFrame(ctx, i)
		if err != nil {
			w.Close()
			return err
		}
		r, err := state.ApplyUnwrap(src.FrameTime(i), f)
		if err != nil {
			w.Close()
			return fmt.Errorf("frame %d: %w", i, err)
		}
		if r.Status.Severity == unwrap.Warning {
			log.Warn(r.Status.Text, "frame", i)
		}
		var box [][]float64
		if r.Frame.Cell != nil {
			box = append(box, r.Frame.Cell.Box())
		}
		if err := w.WNext(r.Frame.Positions, box...); err != nil {
			w.Close()
			return err
		}
		written++
	}
	if err := w.Close(); err != nil {
		return err
	}
	log.Info("Unwrapped trajectory written", "file", flagOut, "frames", written)
	return nil
}
