// -----------------------------------------------------------------------
// Host Probe - ICMP reachability checks via the platform ping facility
// -----------------------------------------------------------------------

package probe

import (
	"context"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/apfleet/internal/models"
)

// rttPattern matches the round-trip time in ping output on both Windows
// ("time=3ms", "time<1ms") and Unix ("time=3.21 ms") platforms.
var rttPattern = regexp.MustCompile(`(?i)time[=<]([\d.]+)\s*ms`)

// Prober runs single-shot reachability checks. It never returns an error:
// any process failure, non-zero exit, or timeout is reported as unreachable.
type Prober struct {
	timeout time.Duration
	logger  arbor.ILogger
}

// NewProber creates a prober with the given per-probe timeout.
func NewProber(timeout time.Duration, logger arbor.ILogger) *Prober {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Prober{timeout: timeout, logger: logger}
}

// Probe sends one ping to the address and reports reachability plus the
// measured round-trip time. The RTT comes from the ping output when it can
// be parsed and from the process wall time otherwise.
func (p *Prober) Probe(ctx context.Context, address string) models.ProbeResult {
	result := models.ProbeResult{Address: address, At: time.Now()}

	cmdCtx, cancel := context.WithTimeout(ctx, p.timeout+500*time.Millisecond)
	defer cancel()

	start := time.Now()
	args := pingCommand(address, p.timeout)
	cmd := exec.CommandContext(cmdCtx, args[0], args[1:]...)
	output, err := cmd.Output()
	elapsed := time.Since(start)

	if err != nil {
		p.logger.Debug().Str("address", address).Err(err).Msg("Probe failed")
		return result
	}

	result.Reachable = true
	result.RTT = parseRTT(output, elapsed)
	return result
}

// pingCommand builds the platform ping invocation for one packet with a
// bounded wait.
func pingCommand(address string, timeout time.Duration) []string {
	if runtime.GOOS == "windows" {
		// -n count, -w timeout in milliseconds
		return []string{"ping", "-n", "1", "-w", strconv.Itoa(int(timeout.Milliseconds())), address}
	}
	// -c count, -W timeout in seconds (minimum 1)
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}
	return []string{"ping", "-c", "1", "-W", strconv.Itoa(secs), address}
}

// parseRTT extracts the reported round-trip time from ping output, falling
// back to the measured process duration.
func parseRTT(output []byte, fallback time.Duration) time.Duration {
	if m := rttPattern.FindSubmatch(output); m != nil {
		if ms, err := strconv.ParseFloat(string(m[1]), 64); err == nil {
			return time.Duration(ms * float64(time.Millisecond))
		}
	}
	return fallback
}
