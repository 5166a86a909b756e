// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package stackmap

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds encoding statistics shared by streams and dedupers.
type Metrics struct {
	// EncodedBytes observes the size of each blob produced by a stream.
	EncodedBytes prometheus.Histogram
	// StackMaps counts stack maps encoded.
	StackMaps prometheus.Counter
	// DedupedBlobs counts blobs found to be duplicates by a Deduper.
	DedupedBlobs prometheus.Counter
	// DedupedBytes counts bytes saved by a Deduper.
	DedupedBytes prometheus.Counter
}

// NewMetrics constructs Metrics whose names are prefixed with namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		EncodedBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "code_info_bytes",
			Help:      "Size of encoded code info blobs.",
			Buckets:   prometheus.ExponentialBuckets(16, 2, 12),
		}),
		StackMaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stack_maps_total",
			Help:      "Number of stack maps encoded.",
		}),
		DedupedBlobs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deduped_blobs_total",
			Help:      "Number of code info blobs replaced by an identical earlier blob.",
		}),
		DedupedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deduped_bytes_total",
			Help:      "Bytes saved by code info deduplication.",
		}),
	}
}

// Collectors returns the metrics for registration with a prometheus
// registry.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.EncodedBytes, m.StackMaps, m.DedupedBlobs, m.DedupedBytes}
}
