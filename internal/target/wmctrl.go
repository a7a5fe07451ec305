package target

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// WMCtrl enumerates X11 windows through `wmctrl -lp`.
type WMCtrl struct {
	// Command defaults to "wmctrl"
	Command string
	// ProcRoot defaults to "/proc"; used to resolve process paths
	ProcRoot string
}

func (w WMCtrl) command() string {
	if w.Command == "" {
		return "wmctrl"
	}
	return w.Command
}

// Available checks that the wmctrl binary can be found. The error wraps
// ErrUnavailable.
func (w WMCtrl) Available() error {
	command := w.command()
	if _, err := exec.LookPath(command); err != nil {
		return fmt.Errorf("%w: %s is not installed: %v", ErrUnavailable, command, err)
	}
	return nil
}

// Enumerate runs wmctrl and parses its window list.
func (w WMCtrl) Enumerate(ctx context.Context) ([]Window, error) {
	if err := w.Available(); err != nil {
		return nil, err
	}
	command := w.command()

	out, err := exec.CommandContext(ctx, command, "-lp").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s: %w", command, err)
	}

	windows, err := parseWMCtrl(string(out))
	if err != nil {
		return nil, err
	}

	procRoot := w.ProcRoot
	if procRoot == "" {
		procRoot = "/proc"
	}
	for i := range windows {
		if windows[i].PID == 0 {
			continue
		}
		exe := filepath.Join(procRoot, strconv.FormatUint(uint64(windows[i].PID), 10), "exe")
		if path, err := os.Readlink(exe); err == nil {
			windows[i].ProcessPath = path
		}
	}
	return windows, nil
}

// 0x03a00003  0 4242   host Mozilla Firefox
var wmctrlLine = regexp.MustCompile(`^(0x[0-9a-fA-F]+)\s+(-?\d+)\s+(\d+)\s+(\S+)\s*(.*)$`)

// parseWMCtrl processes the output of `wmctrl -lp`. Windows without a title
// are skipped.
func parseWMCtrl(output string) ([]Window, error) {
	var windows []Window

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		m := wmctrlLine.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("unexpected wmctrl line %q", line)
		}

		title := strings.TrimSpace(m[5])
		if title == "" {
			continue
		}

		handle, err := strconv.ParseUint(m[1], 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid window id %q: %w", m[1], err)
		}
		pid, err := strconv.ParseUint(m[3], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid pid %q: %w", m[3], err)
		}

		windows = append(windows, Window{
			Title:  title,
			Handle: handle,
			PID:    uint32(pid),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return windows, nil
}
