package supervisor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// shWorker builds an argv that runs script via the shell; the supervisor
// appends the target, which lands in $0 and is ignored.
func shWorker(script string) []string {
	return []string{"sh", "-c", script}
}

func TestRunStopsOnZeroTotal(t *testing.T) {
	s := New(shWorker(`echo "scraping..."; echo "Total: 0"`), zap.NewNop())
	var out, errOut bytes.Buffer
	s.SetOutput(&out, &errOut)

	require.NoError(t, s.Run(context.Background(), "https://comick.app/comic/foo"))
	require.Contains(t, out.String(), "scraping...", "worker stdout must be mirrored")
	require.Contains(t, out.String(), "Total: 0")
}

func TestRunRelaunchesUntilExhausted(t *testing.T) {
	counter := filepath.Join(t.TempDir(), "generations")
	script := fmt.Sprintf(
		`c=$(cat %q 2>/dev/null || echo 0); c=$((c+1)); echo "$c" > %q; `+
			`if [ "$c" -lt 3 ]; then echo "Total: 1"; else echo "Total: 0"; fi`,
		counter, counter)

	s := New(shWorker(script), zap.NewNop())
	var out bytes.Buffer
	s.SetOutput(&out, &out)

	require.NoError(t, s.Run(context.Background(), "https://comick.app/comic/foo"))

	runs := 0
	fmt.Sscanf(readFile(t, counter), "%d", &runs)
	require.Equal(t, 3, runs, "workers relaunch while totals stay nonzero")
}

func TestRunFailsWithoutCompletionSignal(t *testing.T) {
	s := New(shWorker(`echo "dying unexpectedly"`), zap.NewNop())
	var out bytes.Buffer
	s.SetOutput(&out, &out)

	err := s.Run(context.Background(), "https://comick.app/comic/foo")
	require.ErrorIs(t, err, ErrNoCompletionSignal)
}

func TestRunFailsOnGarbledTotal(t *testing.T) {
	s := New(shWorker(`echo "Total: soon"`), zap.NewNop())
	var out bytes.Buffer
	s.SetOutput(&out, &out)

	err := s.Run(context.Background(), "https://comick.app/comic/foo")
	require.ErrorIs(t, err, ErrNoCompletionSignal)
}

func TestParseTotal(t *testing.T) {
	for line, want := range map[string]int{
		"Total: 0":   0,
		"Total: 42":  42,
		"  Total: 7": 7,
	} {
		got, ok := parseTotal(line)
		require.True(t, ok, "line %q", line)
		require.Equal(t, want, got)
	}

	for _, line := range []string{"", "done", "Total:", "Total: many", "total: 3"} {
		_, ok := parseTotal(line)
		require.False(t, ok, "line %q", line)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
