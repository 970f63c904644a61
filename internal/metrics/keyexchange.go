// SecureChat - End-to-End Encrypted Chat
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SecureChat.
//
// SecureChat is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SecureChat is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SecureChat. If not, see <https://www.gnu.org/licenses/>.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// KeyExchangesInitiated tracks key exchanges started, by engine
	KeyExchangesInitiated = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "key_exchange",
			Name:      "initiated_total",
			Help:      "Total number of key exchanges initiated",
		},
		[]string{"engine"}, // private, group, server
	)

	// KeyExchangesCompleted tracks completed key exchanges
	KeyExchangesCompleted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "key_exchange",
			Name:      "completed_total",
			Help:      "Total number of key exchanges completed",
		},
		[]string{"status"}, // success, failure
	)

	// KeyExchangesFailed tracks failed key exchanges by error type
	KeyExchangesFailed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "key_exchange",
			Name:      "failed_total",
			Help:      "Total number of failed key exchanges by error type",
		},
		[]string{"error_type"}, // timeout, invalid, self_exchange, tie_break
	)

	// KeyExchangeDuration tracks key exchange stage durations
	KeyExchangeDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "key_exchange",
			Name:      "duration_seconds",
			Help:      "Key exchange stage duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to 2s
		},
		[]string{"stage"}, // init, ack, rotate
	)

	// GroupRekeysTotal tracks group key rotations, by trigger
	GroupRekeysTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "key_exchange",
			Name:      "group_rekeys_total",
			Help:      "Total number of group key rotations performed",
		},
		[]string{"trigger"}, // membership_change, threshold, manual
	)
)
