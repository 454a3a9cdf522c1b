package sim

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/user/blue-llcp/llcp"
)

func playFile(t *testing.T, name string) *Report {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", name))
	require.NoError(t, err)

	cfg := PerfectConfig()
	if s.Link != nil {
		cfg = *s.Link
	}
	p, err := NewPair(llcp.DefaultConfig(), cfg)
	require.NoError(t, err)
	r, err := p.Play(s)
	require.NoError(t, err)
	return r
}

func TestScenarioFiles(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		name := filepath.Base(f)
		t.Run(name, func(t *testing.T) {
			r := playFile(t, name)
			require.True(t, r.Passed(), "failures: %v", r.Failures)
			require.True(t, r.Idle)
		})
	}
}

func TestReportFailures(t *testing.T) {
	status := uint8(0x0C)
	reason := uint8(0x13)
	s := &Scenario{
		Name: "wrong expectations",
		Timeline: []TimelineEvent{
			{At: 0, Side: SideCentral, Action: ActionLEPing, Args: Args{Status: &status}},
			{At: 0, Side: SideCentral, Action: ActionVersionExchange},
		},
		Expect: Expectations{
			Notifications: []NtfExpectation{{Side: SideCentral, Kind: "VERSION", Count: 2}},
			Disconnect:    &reason,
		},
	}
	require.Empty(t, s.Validate())

	p := newPair(t, nil)
	r, err := p.Play(s)
	require.NoError(t, err)
	require.False(t, r.Passed())
	require.Len(t, r.Failures, 3)
	require.Equal(t, 1, r.Count(SideCentral, "VERSION"))

	var out bytes.Buffer
	r.Print(&out, true)
	require.Contains(t, out.String(), "FAIL: ")
	require.Contains(t, out.String(), "LL_VERSION_IND")
}

func TestScenarioValidate(t *testing.T) {
	s := &Scenario{
		Events: 5,
		Timeline: []TimelineEvent{
			{At: 9, Side: SideCentral, Action: ActionLEPing},
			{At: 0, Side: "observer", Action: ActionLEPing},
			{At: 0, Side: SidePeripheral, Action: "dance"},
		},
		Expect: Expectations{
			Notifications: []NtfExpectation{{Side: SideCentral, Kind: "BOGUS"}},
		},
	}
	require.Len(t, s.Validate(), 5)
}

func TestLoadScenarioErrors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0644))
		return path
	}

	_, err := LoadScenario(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	_, err = LoadScenario(write("unknown_field.yaml", "name: x\nspeed: 3\n"))
	require.Error(t, err)

	_, err = LoadScenario(write("invalid.yaml", "name: x\ntimeline:\n  - at: 0\n    side: central\n    action: fly\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown action")
}

func TestBadChanMapArgument(t *testing.T) {
	p := newPair(t, nil)
	_, err := p.Play(&Scenario{
		Name: "bad map",
		Timeline: []TimelineEvent{
			{At: 0, Side: SideCentral, Action: ActionChanMapUpdate, Args: Args{ChanMap: "ff"}},
		},
	})
	require.Error(t, err)
}
