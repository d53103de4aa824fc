/*
 *
 *  * Licensed to the Apache Software Foundation (ASF) under one or more
 *  * contributor license agreements.  See the NOTICE file distributed with
 *  * this work for additional information regarding copyright ownership.
 *  * The ASF licenses this file to You under the Apache License, Version 2.0
 *  * (the "License"); you may not use this file except in compliance with
 *  * the License.  You may obtain a copy of the License at
 *  *
 *  *     http://www.apache.org/licenses/LICENSE-2.0
 *  *
 *  * Unless required by applicable law or agreed to in writing, software
 *  * distributed under the License is distributed on an "AS IS" BASIS,
 *  * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *  * See the License for the specific language governing permissions and
 *  * limitations under the License.
 *
 */

package monitor

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Dispatched("content")
	m.Dispatched("content")
	m.CacheLookup("immutable-cache-v2", "hit")
	m.CacheStore("immutable-cache-v2", "ok")
	done := m.FetchStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InflightFetches))
	done("200")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HandlerRequests.WithLabelValues("content")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("immutable-cache-v2", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheStores.WithLabelValues("immutable-cache-v2", "ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InflightFetches))

	n, err := testutil.GatherAndCount(reg, "swgateway_fetch_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Dispatched("asset")
		m.CacheLookup("b", "miss")
		m.CacheStore("b", "error")
		m.FetchStarted()("500")
	})
}
