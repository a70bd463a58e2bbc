// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics exposes the linter's Prometheus instrumentation: per-rule
// dispatch duration (gated on config.Timings), cache hit/miss counts, and
// host-pool depth. Each run owns its own registry so tests and embedders
// never collide on the global default.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds one run's metric set against its own registry.
type Collector struct {
	Registry *prometheus.Registry

	RuleDuration *prometheus.HistogramVec
	CacheResult  *prometheus.CounterVec
	HostPoolDepth prometheus.GaugeFunc
}

// New registers a fresh metric set. depthFn, if non-nil, backs the
// host-pool depth gauge; pass nil and skip wiring when no pool exists yet.
func New(depthFn func() float64) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		RuleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tsuzulint",
			Name:      "rule_duration_seconds",
			Help:      "Wall-clock duration of a single rule dispatch, by rule name.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"rule"}),
		CacheResult: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tsuzulint",
			Name:      "cache_result_total",
			Help:      "File-level cache lookups, partitioned by hit/miss.",
		}, []string{"result"}),
	}
	reg.MustRegister(c.RuleDuration, c.CacheResult)

	if depthFn != nil {
		c.HostPoolDepth = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "tsuzulint",
			Name:      "host_pool_depth",
			Help:      "Number of idle hosts currently parked in the pool.",
		}, depthFn)
		reg.MustRegister(c.HostPoolDepth)
	}
	return c
}

// ObserveRule records one rule dispatch's wall-clock duration in seconds.
func (c *Collector) ObserveRule(rule string, seconds float64) {
	if c == nil {
		return
	}
	c.RuleDuration.WithLabelValues(rule).Observe(seconds)
}

// ObserveCacheHit records a file-level cache hit.
func (c *Collector) ObserveCacheHit() { c.observeCache("hit") }

// ObserveCacheMiss records a file-level cache miss.
func (c *Collector) ObserveCacheMiss() { c.observeCache("miss") }

func (c *Collector) observeCache(result string) {
	if c == nil {
		return
	}
	c.CacheResult.WithLabelValues(result).Inc()
}
