// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package reader

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	readerSessionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gorawevent_reader_sessions",
		Help: "Count of open reader sessions.",
	})

	readerEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gorawevent_reader_events",
		Help: "Count of events read, sequentially or by offset.",
	})

	readerBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gorawevent_reader_bytes",
		Help: "Count of encoded event bytes read.",
	})

	readerFilesOpened = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gorawevent_reader_files_opened",
		Help: "Count of physical files opened.",
	})

	readerProbes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gorawevent_reader_sequence_probes",
		Help: "Count of candidate sequence files probed for existence.",
	})

	readerErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gorawevent_reader_errors",
		Help: "Count of reader errors encountered.",
	}, []string{"type"})
)

// RegisterMonitoring registers all of this package's monitoring metrics.
func RegisterMonitoring(reg prometheus.Registerer) {
	reg.MustRegister(
		readerSessionsGauge,
		readerEvents,
		readerBytes,
		readerFilesOpened,
		readerProbes,
		readerErrors,
	)
}
