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

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithoutDepthFnSkipsHostPoolGauge(t *testing.T) {
	c := New(nil)
	assert.Nil(t, c.HostPoolDepth)
	mfs, err := c.Registry.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		assert.NotEqual(t, "tsuzulint_host_pool_depth", mf.GetName())
	}
}

func TestNewWithDepthFnRegistersGauge(t *testing.T) {
	c := New(func() float64 { return 3 })
	require.NotNil(t, c.HostPoolDepth)
	assert.Equal(t, float64(3), testutil.ToFloat64(c.HostPoolDepth))
}

func TestObserveRuleRecordsHistogram(t *testing.T) {
	c := New(nil)
	c.ObserveRule("no-loud-word", 0.25)
	count := testutil.CollectAndCount(c.RuleDuration)
	assert.Equal(t, 1, count)
}

func TestObserveCacheHitAndMissIncrementDistinctCounters(t *testing.T) {
	c := New(nil)
	c.ObserveCacheHit()
	c.ObserveCacheHit()
	c.ObserveCacheMiss()

	assert.Equal(t, float64(2), testutil.ToFloat64(c.CacheResult.WithLabelValues("hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.CacheResult.WithLabelValues("miss")))
}

func TestNilCollectorMethodsAreNoops(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveRule("r", 1)
		c.ObserveCacheHit()
		c.ObserveCacheMiss()
	})
}

func TestTwoCollectorsUseIndependentRegistries(t *testing.T) {
	a := New(nil)
	b := New(nil)
	a.ObserveCacheHit()
	assert.Equal(t, float64(1), testutil.ToFloat64(a.CacheResult.WithLabelValues("hit")))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.CacheResult.WithLabelValues("hit")))
}
