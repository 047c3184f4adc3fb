package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestThrottler(products ...string) *Throttler {
	return New(DefaultRules(), products)
}

func TestEvaluate_NoMatchReturnsReject(t *testing.T) {
	// accept_everything is the terminal catch-all, so truly nothing reaches
	// NO_MATCH under the default rule set; verify that directly instead.
	th := New(nil, nil)
	res := th.Evaluate(map[string]string{"ProductName": "Firefox"})
	assert.Equal(t, Reject, res.Decision)
	assert.Equal(t, "NO_MATCH", res.RuleName)
	assert.Equal(t, 0, res.Percent)
}

func TestEvaluate_IsNightly(t *testing.T) {
	th := newTestThrottler()
	res := th.Evaluate(map[string]string{
		"ProductName":    "Firefox",
		"Version":        "60.0a1",
		"ReleaseChannel": "nightly",
	})
	assert.Equal(t, Accept, res.Decision)
	assert.Equal(t, "is_nightly", res.RuleName)
}

func TestEvaluate_IsGPU(t *testing.T) {
	th := newTestThrottler()
	res := th.Evaluate(map[string]string{"ProcessType": "gpu"})
	assert.Equal(t, Accept, res.Decision)
	assert.Equal(t, "is_gpu", res.RuleName)
}

func TestEvaluate_HasOldBuildID(t *testing.T) {
	th := newTestThrottler()
	old := time.Now().AddDate(-3, 0, 0).Format("20060102")
	res := th.Evaluate(map[string]string{"BuildID": old + "120000"})
	assert.Equal(t, Reject, res.Decision)
	assert.Equal(t, "has_old_buildid", res.RuleName)
}

func TestEvaluate_HangIDAndBrowser(t *testing.T) {
	th := newTestThrottler()
	res := th.Evaluate(map[string]string{"HangID": "abc"})
	assert.Equal(t, Reject, res.Decision)
	assert.Equal(t, "has_hangid_and_browser", res.RuleName)

	res2 := th.Evaluate(map[string]string{"HangID": "abc", "ProcessType": "gpu"})
	assert.Equal(t, Accept, res2.Decision, "gpu process type should bypass hangid rule and hit is_gpu")
}

func TestEvaluate_UnsupportedProduct(t *testing.T) {
	th := newTestThrottler("Firefox", "Thunderbird")
	res := th.Evaluate(map[string]string{"ProductName": "WaterDuck"})
	assert.Equal(t, Reject, res.Decision)
	assert.Equal(t, "unsupported_product", res.RuleName)
}

func TestEvaluate_B2GFakeAccept(t *testing.T) {
	th := newTestThrottler() // "B2G" not in empty allow-list
	res := th.Evaluate(map[string]string{"ProductName": "b2g"})
	assert.Equal(t, FakeAccept, res.Decision)
	assert.Equal(t, "b2g", res.RuleName)
}

func TestEvaluate_ShutdownKillSampling(t *testing.T) {
	th := newTestThrottler().WithRand(func() float64 { return 0.05 }) // 5 <= 10 -> LE (Continue)
	res := th.Evaluate(map[string]string{"ipc_channel_error": "ShutDownKill"})
	// LE branch is Continue, so evaluation falls through to accept_everything.
	assert.Equal(t, Accept, res.Decision)
	assert.Equal(t, "accept_everything", res.RuleName)

	th2 := newTestThrottler().WithRand(func() float64 { return 0.50 }) // 50 > 10 -> GT (Reject)
	res2 := th2.Evaluate(map[string]string{"ipc_channel_error": "ShutDownKill"})
	assert.Equal(t, Reject, res2.Decision)
	assert.Equal(t, "is_shutdownkill", res2.RuleName)
}

func TestEvaluate_FirefoxDesktopSampling(t *testing.T) {
	ann := map[string]string{"ProductName": "Firefox", "ReleaseChannel": "release"}

	accept := newTestThrottler().WithRand(func() float64 { return 0.09 })
	res := accept.Evaluate(ann)
	assert.Equal(t, Accept, res.Decision)
	assert.Equal(t, "is_firefox_desktop", res.RuleName)

	reject := newTestThrottler().WithRand(func() float64 { return 0.90 })
	res2 := reject.Evaluate(ann)
	assert.Equal(t, Reject, res2.Decision)
	assert.Equal(t, "is_firefox_desktop", res2.RuleName)
}

func TestNewRule_RejectsBadName(t *testing.T) {
	_, err := NewRule("bad name!", AnyKey, func(*Throttler, map[string]string, string) bool { return true }, Terminal(Accept))
	require.Error(t, err)
}

func TestEvaluate_AcceptEverythingCatchAll(t *testing.T) {
	th := newTestThrottler()
	res := th.Evaluate(map[string]string{})
	assert.Equal(t, Accept, res.Decision)
	assert.Equal(t, "accept_everything", res.RuleName)
}
