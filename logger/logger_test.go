package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func capture(t *testing.T, level LogLevel) *[]string {
	t.Helper()
	var lines []string
	prev := GetLevel()
	SetLevel(level)
	SetSink(func(_ LogLevel, line string) { lines = append(lines, line) })
	t.Cleanup(func() {
		SetLevel(prev)
		SetSink(nil)
	})
	return &lines
}

func TestLevelFiltering(t *testing.T) {
	lines := capture(t, WARN)

	Debug("llcp 0x0001", "hidden %d", 1)
	Info("llcp 0x0001", "hidden too")
	Warn("llcp 0x0001", "dropping %s", "LL_PING_RSP")
	Error("", "bare")

	require.Equal(t, []string{
		"[llcp 0x0001 WARN ] dropping LL_PING_RSP",
		"[ERROR] bare",
	}, *lines)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"trace": TRACE,
		"DEBUG": DEBUG,
		"Warn":  WARN,
		"error": ERROR,
		"":      INFO,
		"loud":  INFO,
	}
	for in, want := range tests {
		require.Equal(t, want, ParseLevel(in), in)
	}
}

func TestJSONHelpers(t *testing.T) {
	lines := capture(t, DEBUG)

	s, err := structpb.NewStruct(map[string]interface{}{"kind": "PHY_UPDATE"})
	require.NoError(t, err)
	DebugJSON("host", "notification", s)
	InfoJSON("host", "config", struct{ MaxConns int }{2})

	require.Len(t, *lines, 2)
	require.Contains(t, (*lines)[0], `"kind"`)
	require.Contains(t, (*lines)[0], `PHY_UPDATE`)
	require.Contains(t, (*lines)[1], `"MaxConns": 2`)

	SetLevel(ERROR)
	DebugJSON("host", "notification", s)
	require.Len(t, *lines, 2)
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	WriterSink(&buf)(INFO, "one")
	WriterSink(&buf)(INFO, "two")
	require.Equal(t, "one\ntwo\n", buf.String())
}
