package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	PassesRun          atomic.Int64
	PassesFailed       atomic.Int64
	VehiclesEvaluated  atomic.Int64
	VehiclesSuppressed atomic.Int64
	VehiclesIncluded   atomic.Int64
	SendsAccepted      atomic.Int64
	SendsRejected      atomic.Int64
	ClearancesRecorded atomic.Int64
	ClearancesFailed   atomic.Int64
)

func HandleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "alertd_passes_run_total %d\n", PassesRun.Load())
	fmt.Fprintf(w, "alertd_passes_failed_total %d\n", PassesFailed.Load())
	fmt.Fprintf(w, "alertd_vehicles_evaluated_total %d\n", VehiclesEvaluated.Load())
	fmt.Fprintf(w, "alertd_vehicles_suppressed_total %d\n", VehiclesSuppressed.Load())
	fmt.Fprintf(w, "alertd_vehicles_included_total %d\n", VehiclesIncluded.Load())
	fmt.Fprintf(w, "alertd_sends_accepted_total %d\n", SendsAccepted.Load())
	fmt.Fprintf(w, "alertd_sends_rejected_total %d\n", SendsRejected.Load())
	fmt.Fprintf(w, "alertd_clearances_recorded_total %d\n", ClearancesRecorded.Load())
	fmt.Fprintf(w, "alertd_clearances_failed_total %d\n", ClearancesFailed.Load())
}
