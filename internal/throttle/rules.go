package throttle

import (
	"strconv"
	"strings"
	"time"
)

// nowFunc is overridable in tests.
var nowFunc = time.Now

const buildIDMaxAgeDays = 730

// buildIDDate parses the YYYYMMDD prefix of a BuildID annotation. ok is
// false if the prefix doesn't parse.
func buildIDDate(buildID string) (time.Time, bool) {
	if len(buildID) < 8 {
		return time.Time{}, false
	}
	prefix := buildID[:8]
	year, err := strconv.Atoi(prefix[0:4])
	if err != nil {
		return time.Time{}, false
	}
	month, err := strconv.Atoi(prefix[4:6])
	if err != nil {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(prefix[6:8])
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

func hasPrefixAny(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// DefaultRules returns the mandated default rule set, in order. The
// throttler's configured allow-list (Throttler.Products) is consulted by
// unsupported_product and b2g.
func DefaultRules() []Rule {
	return []Rule{
		MustNewRule("has_old_buildid", AnyKey, func(t *Throttler, ann map[string]string, _ string) bool {
			buildID, ok := ann["BuildID"]
			if !ok {
				return false
			}
			date, ok := buildIDDate(buildID)
			if !ok {
				return false
			}
			return nowFunc().Sub(date) > buildIDMaxAgeDays*24*time.Hour
		}, Terminal(Reject)),

		MustNewRule("has_hangid_and_browser", AnyKey, func(t *Throttler, ann map[string]string, _ string) bool {
			if _, ok := ann["HangID"]; !ok {
				return false
			}
			pt, ok := ann["ProcessType"]
			return !ok || pt == "browser"
		}, Terminal(Reject)),

		MustNewRule("infobar_is_true", AnyKey, func(t *Throttler, ann map[string]string, _ string) bool {
			if ann["ProductName"] != "Firefox" {
				return false
			}
			if ann["SubmittedFromInfobar"] != "true" {
				return false
			}
			if !hasPrefixAny(ann["Version"], "52.", "53.", "54.", "55.", "56.", "57.", "58.", "59.") {
				return false
			}
			return ann["BuildID"] < "20171226"
		}, Terminal(Reject)),

		MustNewRule("b2g", AnyKey, func(t *Throttler, ann map[string]string, _ string) bool {
			if t.ProductAllowedExact("B2G") {
				return false
			}
			return strings.ToLower(ann["ProductName"]) == "b2g"
		}, Terminal(FakeAccept)),

		MustNewRule("unsupported_product", "ProductName", func(t *Throttler, ann map[string]string, value string) bool {
			if len(t.Products) == 0 {
				return false
			}
			return !t.ProductAllowed(value)
		}, Terminal(Reject)),

		MustNewRule("throttleable_0", "Throttleable", func(t *Throttler, ann map[string]string, value string) bool {
			return value == "0"
		}, Terminal(Accept)),

		MustNewRule("has_comments", "Comments", func(t *Throttler, ann map[string]string, value string) bool {
			return true
		}, Terminal(Accept)),

		MustNewRule("is_gpu", "ProcessType", func(t *Throttler, ann map[string]string, value string) bool {
			return value == "gpu"
		}, Terminal(Accept)),

		MustNewRule("is_shutdownkill", "ipc_channel_error", func(t *Throttler, ann map[string]string, value string) bool {
			return value == "ShutDownKill"
		}, SampleOutcome(10, Continue, Reject)),

		MustNewRule("is_alpha_beta_esr", "ReleaseChannel", func(t *Throttler, ann map[string]string, value string) bool {
			switch value {
			case "aurora", "beta", "esr":
				return true
			default:
				return false
			}
		}, Terminal(Accept)),

		MustNewRule("is_nightly", "ReleaseChannel", func(t *Throttler, ann map[string]string, value string) bool {
			return strings.HasPrefix(value, "nightly")
		}, Terminal(Accept)),

		MustNewRule("is_firefox_desktop", AnyKey, func(t *Throttler, ann map[string]string, _ string) bool {
			return ann["ProductName"] == "Firefox" && ann["ReleaseChannel"] == "release"
		}, SampleOutcome(10, Accept, Reject)),

		MustNewRule("accept_everything", AnyKey, func(t *Throttler, ann map[string]string, _ string) bool {
			return true
		}, Terminal(Accept)),
	}
}

// ProductAllowedExact reports whether product is present verbatim in the
// allow-list (used by the b2g rule, which checks for "B2G" specifically
// rather than the submitted product name).
func (t *Throttler) ProductAllowedExact(product string) bool {
	for _, p := range t.Products {
		if p == product {
			return true
		}
	}
	return false
}
