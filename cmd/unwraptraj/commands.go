/*
 * commands.go, part of gounwrap.
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
	"os"

	"github.com/spf13/cobra"
)

var (
	cfg        Config
	configPath string

	flagRecords     string
	flagPBC         string
	flag2D          bool
	flagDt          float64
	flagLogLevel    string
	flagMetricsAddr string
	flagUpTo        float64
	flagFresh       bool
	flagOut         string
	flagPlotOut     string
	flagTitle       string

	rootCmd = &cobra.Command{
		Use:   "unwraptraj",
		Short: "Unwrap particle trajectories from periodic simulations",
		Long: `unwraptraj finds the periodic boundary crossings of the particles in a
trajectory and writes trajectories where particles move continuously.`,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}

	scanCmd = &cobra.Command{
		Use:   "scan TRAJ",
		Short: "Scan a trajectory and save its crossing records",
		Long: `Scans the trajectory from the last frame already in the records file (unless
--fresh is given) and saves the records. An interrupted scan keeps what it found.`,
		Args: cobra.ExactArgs(1),
		RunE: runScan, // cmd_scan.go
	}

	applyCmd = &cobra.Command{
		Use:   "apply TRAJ",
		Short: "Write the unwrapped version of a scanned trajectory",
		Args:  cobra.ExactArgs(1),
		RunE:  runApply, // cmd_apply.go
	}

	inspectCmd = &cobra.Command{
		Use:   "inspect",
		Short: "Print a summary of a records file and its contents as JSON",
		Args:  cobra.NoArgs,
		RunE:  runInspect, // cmd_records.go
	}

	plotCmd = &cobra.Command{
		Use:   "plot",
		Short: "Plot the crossings and cell flips of a records file over time",
		Args:  cobra.NoArgs,
		RunE:  runPlot, // cmd_records.go
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML configuration file")
	pf.StringVarP(&flagRecords, "records", "r", "", "crossing records file")
	pf.StringVar(&flagPBC, "pbc", "", `periodic cell axes, as in "1 1 0" (default: from the trajectory)`)
	pf.BoolVar(&flag2D, "2d", false, "the system is two-dimensional")
	pf.Float64Var(&flagDt, "dt", 0, "time between frames (default: from the trajectory, or 1)")
	pf.StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	scanCmd.Flags().Float64Var(&flagUpTo, "upto", 0, "do not scan frames after this time")
	scanCmd.Flags().BoolVar(&flagFresh, "fresh", false, "ignore existing records and scan from the start")

	applyCmd.Flags().StringVarP(&flagOut, "out", "o", "", "unwrapped trajectory to write")
	applyCmd.MarkFlagRequired("out")

	plotCmd.Flags().StringVarP(&flagPlotOut, "out", "o", "timeline.png", "image file to write")
	plotCmd.Flags().StringVar(&flagTitle, "title", "Periodic boundary crossings", "plot title")

	rootCmd.AddCommand(scanCmd, applyCmd, inspectCmd, plotCmd)
}

// loadConfig builds cfg from the file, the environment and the flags that were set.
func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := LoadConfig(configPath, os.Getenv)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("records") {
		c.Records = flagRecords
	}
	if flags.Changed("pbc") {
		if c.PBC, err = parsePBC(flagPBC); err != nil {
			return err
		}
	}
	if flags.Changed("2d") {
		c.Is2D = &flag2D
	}
	if flags.Changed("dt") {
		c.Dt = flagDt
	}
	if flags.Changed("log-level") {
		c.LogLevel = flagLogLevel
	}
	if flags.Changed("metrics-addr") {
		c.MetricsAddr = flagMetricsAddr
	}
	if flags.Changed("upto") {
		c.UpTo = flagUpTo
	}
	if err := c.Validate(); err != nil {
		return err
	}
	cfg = c
	return nil
}
