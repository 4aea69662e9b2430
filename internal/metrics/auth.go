package metrics

import "time"

// SubmitStarted should be called when a form turns busy
func SubmitStarted() {
	AuthInFlight.Inc()
}

// SubmitFinished records the end of a busy span
func SubmitFinished(mode string, duration time.Duration) {
	AuthInFlight.Dec()
	AuthSubmitDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// SubmitOutcome counts a resolved submission, including local rejections
func SubmitOutcome(mode, outcome string) {
	AuthSubmissionsTotal.WithLabelValues(mode, outcome).Inc()
}

// ProfileProvisioned records a successful profile upsert
func ProfileProvisioned() {
	ProfileProvisionsTotal.WithLabelValues("succeeded").Inc()
}

// ProfileProvisionFailed records a swallowed profile upsert failure
func ProfileProvisionFailed() {
	ProfileProvisionsTotal.WithLabelValues("failed").Inc()
}
