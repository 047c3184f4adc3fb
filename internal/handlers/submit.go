package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ocx/backend/internal/crashid"
	"github.com/ocx/backend/internal/crashmover"
	"github.com/ocx/backend/internal/extract"
	"github.com/ocx/backend/internal/metrics"
	"github.com/ocx/backend/internal/throttle"
)

// throttleDigit maps a throttle decision to the single digit minted into a
// crash id: 0 marks an accepted report, 1 marks everything else (deferred,
// rejected, or fake-accepted reports still get an id shape consistent with
// "not unconditionally accepted").
func throttleDigit(d throttle.Decision) int {
	if d == throttle.Accept {
		return 0
	}
	return 1
}

// Submit handles POST /submit: extract, throttle, mint/reuse a crash id,
// and — unless the outcome is REJECT or FAKEACCEPT — enqueue the report to
// the crash-mover. Response content type is always text/plain; clients
// parse the body by its "CrashID=" / "Discarded=" prefix.
func Submit(th *throttle.Throttler, mover *crashmover.Mover, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		w.Header().Set("Content-Type", "text/plain")

		report, err := extract.Extract(r.Header, r.ContentLength, r.Body)
		if err != nil {
			var reason string
			if me, ok := err.(*extract.MalformedError); ok {
				reason = string(me.Reason)
			} else {
				reason = "unknown"
			}
			m.SubmitRequests.WithLabelValues("malformed").Inc()
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, "Discarded=malformed_%s", reason)
			return
		}

		report.SubmittedTimestamp = start.UTC().Format(time.RFC3339)
		result := th.Evaluate(report.Annotations)

		var crashID string
		if uuid, ok := report.Annotations["uuid"]; ok && crashid.Validate(uuid, false) {
			crashID = uuid
		} else {
			crashID = crashid.Mint(start, throttleDigit(result.Decision))
		}
		report.Annotations["uuid"] = crashID
		report.CrashID = crashID

		slog.Info("throttle decision",
			"crash_id", crashID,
			"rule", result.RuleName,
			"decision", result.Decision.String(),
		)
		m.ThrottleDecisions.WithLabelValues(result.Decision.String()).Inc()
		m.SubmitDuration.Observe(time.Since(start).Seconds())

		switch result.Decision {
		case throttle.Reject:
			m.SubmitRequests.WithLabelValues("rejected").Inc()
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, "Discarded=rule_%s", result.RuleName)
			return

		case throttle.FakeAccept:
			m.SubmitRequests.WithLabelValues("fakeaccept").Inc()
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, "CrashID=bp-%s\n", crashID)
			return
		}

		report.StripForbidden()
		mover.Enqueue(crashmover.Job{Report: report, CrashID: crashID})

		m.SubmitRequests.WithLabelValues("accepted").Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "CrashID=bp-%s\n", crashID)
	}
}
