// Package log provides logging with severity levels on top of glog. Every
// message is prefixed with the thread it concerns, if any.
package log

import (
	"fmt"

	"github.com/golang/glog"
)

// withWho prepends who to argv. A nil who, or one that renders as "",
// leaves argv untouched.
func withWho(who fmt.Stringer, argv ...interface{}) []interface{} {
	if who == nil {
		return argv
	}
	prefix := who.String()
	if prefix == "" {
		return argv
	}
	if len(argv) != 0 {
		prefix += ": "
	}
	return append([]interface{}{prefix}, argv...)
}

// Depth logs with the call site that many frames above the caller.
type Depth int

func (d Depth) Info(who fmt.Stringer, argv ...interface{}) {
	glog.InfoDepth(int(d+1), withWho(who, argv...)...)
}

func (d Depth) Infof(who fmt.Stringer, format string, argv ...interface{}) {
	glog.InfoDepth(int(d+1), withWho(who, fmt.Sprintf(format, argv...))...)
}

func (d Depth) Warning(who fmt.Stringer, argv ...interface{}) {
	glog.WarningDepth(int(d+1), withWho(who, argv...)...)
}

func (d Depth) Warningf(who fmt.Stringer, format string, argv ...interface{}) {
	glog.WarningDepth(int(d+1), withWho(who, fmt.Sprintf(format, argv...))...)
}

func (d Depth) Error(who fmt.Stringer, argv ...interface{}) {
	glog.ErrorDepth(int(d+1), withWho(who, argv...)...)
}

func (d Depth) Errorf(who fmt.Stringer, format string, argv ...interface{}) {
	glog.ErrorDepth(int(d+1), withWho(who, fmt.Sprintf(format, argv...))...)
}

// Fatal logs and terminates the process with a goroutine dump.
func (d Depth) Fatal(who fmt.Stringer, argv ...interface{}) {
	glog.FatalDepth(int(d+1), withWho(who, argv...)...)
}

func Info(who fmt.Stringer, argv ...interface{})    { Depth(1).Info(who, argv...) }
func Warning(who fmt.Stringer, argv ...interface{}) { Depth(1).Warning(who, argv...) }
func Error(who fmt.Stringer, argv ...interface{})   { Depth(1).Error(who, argv...) }
func Fatal(who fmt.Stringer, argv ...interface{})   { Depth(1).Fatal(who, argv...) }

func Infof(who fmt.Stringer, format string, argv ...interface{}) {
	Depth(1).Infof(who, format, argv...)
}

func Warningf(who fmt.Stringer, format string, argv ...interface{}) {
	Depth(1).Warningf(who, format, argv...)
}

func Errorf(who fmt.Stringer, format string, argv ...interface{}) {
	Depth(1).Errorf(who, format, argv...)
}

// V reports whether verbose logging at level is enabled (glog -v).
func V(level int) bool {
	return bool(glog.V(glog.Level(level)))
}

// Verbosity levels.
const (
	// VThreads traces registration and per-thread suspension.
	VThreads = 2
	// VSuspend traces every suspend-all and checkpoint round.
	VSuspend = 3
)

func Flush() { glog.Flush() }
