// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doctray Contributors

package ability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeAllow = "allow"
	outcomeDeny  = "deny"
)

// permissionChecks counts point permission checks by subject and outcome.
var permissionChecks = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "doctray_permission_checks_total",
	Help: "Total number of permission checks by subject and outcome",
}, []string{"subject", "outcome"})

func recordCheck(subject, outcome string) {
	permissionChecks.WithLabelValues(subject, outcome).Inc()
}
