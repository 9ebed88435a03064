// Package supervisor keeps relaunching short-lived worker processes until a
// worker reports that no new artifacts were created. The environment kills
// long scrape sessions after a bounded number of retrievals, so progress is
// made across worker generations instead of one long-lived process; durable
// state lives entirely in the artifact cache the workers share.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// totalLabel prefixes the worker's final stdout line: "Total: <n>".
const totalLabel = "Total:"

// ErrNoCompletionSignal means a worker exited without the Total line,
// i.e. it crashed before reporting rather than running out of work.
var ErrNoCompletionSignal = errors.New("worker exited without a completion signal")

// Supervisor relaunches workers for one target until exhaustion.
type Supervisor struct {
	argv   []string
	stdout io.Writer
	stderr io.Writer
	logger *zap.Logger
}

// New constructs a Supervisor that runs argv with the target appended.
func New(argv []string, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		argv:   argv,
		stdout: os.Stdout,
		stderr: os.Stderr,
		logger: logger,
	}
}

// SetOutput redirects the mirrored worker streams, primarily for tests.
func (s *Supervisor) SetOutput(stdout, stderr io.Writer) {
	s.stdout = stdout
	s.stderr = stderr
}

// Run launches worker generations until one reports `Total: 0`. Worker
// stdout is mirrored line by line as it arrives; the last line must carry
// the completion signal or the loop fails with ErrNoCompletionSignal.
func (s *Supervisor) Run(ctx context.Context, target string) error {
	for generation := 1; ; generation++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		genID := uuid.NewString()[:8]
		s.logger.Info("launching worker",
			zap.Int("generation", generation),
			zap.String("generation_id", genID),
			zap.String("target", target))

		total, err := s.runWorker(ctx, target)
		if err != nil {
			return err
		}
		if total == 0 {
			s.logger.Info("workload exhausted",
				zap.Int("generations", generation),
				zap.String("generation_id", genID))
			return nil
		}

		s.logger.Info("continuing, worker created new artifacts",
			zap.Int("created", total),
			zap.String("generation_id", genID))
	}
}

// runWorker executes one worker process and parses its completion signal.
func (s *Supervisor) runWorker(ctx context.Context, target string) (int, error) {
	args := append(append([]string{}, s.argv[1:]...), target)
	cmd := exec.CommandContext(ctx, s.argv[0], args...)
	cmd.Stderr = s.stderr

	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("worker stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start worker: %w", err)
	}

	var lastLine string
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		fmt.Fprintln(s.stdout, line)
		lastLine = line
	}
	scanErr := scanner.Err()

	// The worker may have been killed by the environment's process-lifetime
	// limit; that is expected and the completion line still decides.
	if waitErr := cmd.Wait(); waitErr != nil {
		s.logger.Warn("worker exited abnormally", zap.Error(waitErr))
	}
	if scanErr != nil {
		return 0, fmt.Errorf("read worker output: %w", scanErr)
	}

	total, ok := parseTotal(lastLine)
	if !ok {
		return 0, fmt.Errorf("%w (last line: %q)", ErrNoCompletionSignal, lastLine)
	}
	return total, nil
}

// parseTotal extracts the integer from a "Total: <n>" line.
func parseTotal(line string) (int, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), totalLabel)
	if !ok {
		return 0, false
	}
	total, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return 0, false
	}
	return total, true
}
