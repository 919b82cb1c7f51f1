//go:build linux

package osthreads

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/DataExMachina-dev/safepoint-go/internal/boottime"
)

const taskDir = "/proc/self/task"

// clockTicks is USER_HZ, which is 100 on every architecture Linux supports
// in practice.
const clockTicks = 100

func gettid() int {
	return unix.Gettid()
}

func list() ([]Task, error) {
	entries, err := os.ReadDir(taskDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", taskDir, err)
	}
	tasks := make([]Task, 0, len(entries))
	for _, e := range entries {
		tid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		t := Task{Tid: tid}
		// The task may exit at any moment; keep whatever could be read.
		dir := filepath.Join(taskDir, e.Name())
		if comm, err := os.ReadFile(filepath.Join(dir, "comm")); err == nil {
			t.Name = strings.TrimSpace(string(comm))
		}
		if stat, err := os.ReadFile(filepath.Join(dir, "stat")); err == nil {
			parseStat(stat, &t)
		}
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Tid < tasks[j].Tid })
	return tasks, nil
}

// parseStat fills in the fields of t found in /proc/<pid>/task/<tid>/stat.
// The command name is parenthesized and may contain spaces, so fields are
// counted from the last ')'.
func parseStat(stat []byte, t *Task) {
	end := bytes.LastIndexByte(stat, ')')
	if end < 0 {
		return
	}
	fields := strings.Fields(string(stat[end+1:]))
	// fields[0] is field 3 (state) of proc(5).
	field := func(n int) (uint64, bool) {
		i := n - 3
		if i >= len(fields) {
			return 0, false
		}
		v, err := strconv.ParseUint(fields[i], 10, 64)
		return v, err == nil
	}
	if len(fields) > 0 {
		t.State = fields[0]
	}
	if v, ok := field(14); ok {
		t.UserTime = ticks(v)
	}
	if v, ok := field(15); ok {
		t.SystemTime = ticks(v)
	}
	if v, ok := field(22); ok {
		if st, err := boottime.SinceBoot(ticks(v)); err == nil {
			t.StartTime = st
		}
	}
}

func ticks(v uint64) time.Duration {
	return time.Duration(v) * (time.Second / clockTicks)
}
