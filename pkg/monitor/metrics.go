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
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const Namespace = "swgateway"

// Metrics are the gateway's prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	HandlerRequests *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
	CacheStores     *prometheus.CounterVec
	FetchDuration   *prometheus.HistogramVec
	InflightFetches prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HandlerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "handler_requests_total",
			Help:      "Requests dispatched, by handler",
		}, []string{"handler"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by bucket and result (hit, miss, expired, error)",
		}, []string{"bucket", "result"}),
		CacheStores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cache_stores_total",
			Help:      "Background cache writes by bucket and result",
		}, []string{"bucket", "result"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time to first byte of content fetches, by status code",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"status"}),
		InflightFetches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "inflight_fetches",
			Help:      "Content fetches in progress",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.HandlerRequests, m.CacheLookups, m.CacheStores, m.FetchDuration, m.InflightFetches)
	}
	return m
}

func (m *Metrics) Dispatched(handler string) {
	if m == nil {
		return
	}
	m.HandlerRequests.WithLabelValues(handler).Inc()
}

func (m *Metrics) CacheLookup(bucket, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(bucket, result).Inc()
}

func (m *Metrics) CacheStore(bucket, result string) {
	if m == nil {
		return
	}
	m.CacheStores.WithLabelValues(bucket, result).Inc()
}

// FetchStarted marks a fetch in flight. Call the returned func with the
// resulting status code, 0 when the fetch failed.
func (m *Metrics) FetchStarted() func(status string) {
	if m == nil {
		return func(string) {}
	}
	start := time.Now()
	m.InflightFetches.Inc()
	return func(status string) {
		m.InflightFetches.Dec()
		m.FetchDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}
}
