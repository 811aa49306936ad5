/*
 * metrics.go, part of gounwrap.
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

package unwrap

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unwrap_frames_scanned_total",
		Help: "Trajectory frames processed by the crossing detector",
	})

	crossingsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unwrap_crossings_recorded_total",
		Help: "Periodic boundary crossings recorded",
	})

	flipsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unwrap_flips_recorded_total",
		Help: "Cell shear flips recorded",
	})

	// scansTotal counts finished scans by outcome (completed, canceled, failed).
	scansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unwrap_scans_total",
		Help: "Finished trajectory scans by outcome",
	}, []string{"outcome"})

	// applyTotal counts unwrap applications by path (images, records, stale).
	applyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unwrap_apply_total",
		Help: "Unwrap applications by path",
	}, []string{"path"})

	scanFrameDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "unwrap_scan_frame_seconds",
		Help:    "Time spent obtaining and processing one frame during a scan",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16), // 0.1ms to ~3s
	})
)
