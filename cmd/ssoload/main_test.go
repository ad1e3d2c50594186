package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/ssoload/internal/loadtest"
	"github.com/FairForge/ssoload/internal/metrics"
)

func TestRun_ListUserAgents(t *testing.T) {
	var out bytes.Buffer
	code := run([]string{"-list-user-agents"}, &out)

	assert.Equal(t, exitOK, code)
	assert.Contains(t, out.String(), "chrome_windows")
	assert.Contains(t, out.String(), "mobile_chrome")
}

func TestRun_BadFlag(t *testing.T) {
	var out bytes.Buffer
	assert.Equal(t, exitUsage, run([]string{"-no-such-flag"}, &out))
}

func TestRun_MissingCredentials(t *testing.T) {
	t.Setenv("SLCM_USERNAME", "")
	t.Setenv("SLCM_PASSWORD", "")

	var out bytes.Buffer
	assert.Equal(t, exitUsage, run(nil, &out))
}

func TestRun_BadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("phases: [oops"), 0o600))

	var out bytes.Buffer
	assert.Equal(t, exitUsage, run([]string{"-config", path}, &out))
}

func TestPrintSummary(t *testing.T) {
	start := time.Now()
	summary := &loadtest.Summary{
		TestName:  "SLCM Login Journey",
		StartTime: start,
		EndTime:   start.Add(30 * time.Second),
		Launched:  60,
		Completed: 58,
		Failed:    2,
		ErrorRate: 2.0 / 60,
		Errors:    map[string]int64{"Submit login and verify success": 2},
		Stats: []metrics.StatSummary{
			{Name: "login_duration", Count: 58, Min: time.Second, P50: 2 * time.Second, Max: 5 * time.Second},
		},
	}

	var out bytes.Buffer
	printSummary(&out, summary)

	text := out.String()
	assert.Contains(t, text, "Scenario: SLCM Login Journey")
	assert.Contains(t, text, "60 launched, 58 completed, 2 failed")
	assert.Contains(t, text, "Submit login and verify success")
	assert.Contains(t, text, "login_duration")
	assert.Contains(t, text, "Duration: 30s")
}

func TestPrintSummary_FailureOrder(t *testing.T) {
	summary := &loadtest.Summary{
		TestName: "ordered",
		Errors: map[string]int64{
			"Navigate to homepage":            1,
			"Submit login and verify success": 5,
			"Fill login credentials":          1,
			"Click login and redirect to SSO": 3,
		},
	}

	want := []string{
		"Submit login and verify success",
		"Click login and redirect to SSO",
		"Fill login credentials",
		"Navigate to homepage",
	}
	for i := 0; i < 5; i++ {
		var out bytes.Buffer
		printSummary(&out, summary)
		text := out.String()

		last := -1
		for _, step := range want {
			idx := strings.Index(text, step)
			require.Greater(t, idx, last, "%s out of order", step)
			last = idx
		}
	}
}
