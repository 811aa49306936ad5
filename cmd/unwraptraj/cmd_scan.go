/*
 * cmd_scan.go, part of gounwrap.
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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"

	unwrap "github.com/rmera/gounwrap"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// openState opens the trajectory name and returns a State with it as source.
// If load is true and the records file exists, the records are read into the State.
func openState(name string, load bool) (*unwrap.State, trajectory, error) {
	log := cfg.Logger()
	src, err := openTrajectory(name)
	if err != nil {
		return nil, nil, err
	}
	state := unwrap.NewState(unwrap.WithLogger(log), unwrap.WithInteractive(cfg.Interactive))
	state.SetSource(unwrap.Async(src), name)
	if !load {
		return state, src, nil
	}
	err = state.Load(cfg.Records)
	if errors.Is(err, fs.ErrNotExist) {
		log.Info("No previous records, scanning from the first frame", "records", cfg.Records)
		err = nil
	}
	if err != nil {
		src.Close()
		return nil, nil, err
	}
	return state, src, nil
}

func runScan(cmd *cobra.Command, args []string) error {
	log := cfg.Logger()
	defer serveMetrics(cfg.MetricsAddr, log)()
	state, src, err := openState(args[0], !flagFresh)
	if err != nil {
		return err
	}
	defer src.Close()
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	h, err := state.BeginScan(ctx, cfg.UpTo)
	if err != nil {
		return err
	}
	var status unwrap.ScanStatus
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		for p := range h.Updates() {
			fmt.Fprintf(cmd.ErrOrStderr(), "\r%s", p)
		}
		fmt.Fprintln(cmd.ErrOrStderr())
		return nil
	})
	g.Go(func() error {
		var err error
		status, err = h.Wait()
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if status == unwrap.Canceled {
		log.Warn("Scan interrupted, saving the records found so far", "processed_up_to", state.Store().ProcessedUpTo())
	}
	if err := state.Save(cfg.Records); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), state.Status(state.Store().ProcessedUpTo()))
	return nil
}
