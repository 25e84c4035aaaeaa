/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package ipmutex

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/valyala/bytebufferpool"
)

type logger struct {
	name      string
	out       atomic.Pointer[logOutput]
	callDepth int
}

// logOutput boxes the writer so it can be swapped atomically.
type logOutput struct {
	io.Writer
}

func newLogger(name string, out io.Writer, callDepth int) *logger {
	l := &logger{name: name, callDepth: callDepth}
	l.out.Store(&logOutput{out})
	return l
}

var (
	internalLogger = newLogger("ipmutex", os.Stderr, 4)
	level          atomic.Int32
	debugMode      = false

	magenta = string([]byte{27, 91, 57, 53, 109}) // Trace
	green   = string([]byte{27, 91, 57, 50, 109}) // Debug
	blue    = string([]byte{27, 91, 57, 52, 109}) // Info
	yellow  = string([]byte{27, 91, 57, 51, 109}) // Warn
	red     = string([]byte{27, 91, 57, 49, 109}) // Error
	reset   = string([]byte{27, 91, 48, 109})

	colors = []string{
		magenta,
		green,
		blue,
		yellow,
		red,
	}

	levelName = []string{
		"Trace",
		"Debug",
		"Info",
		"Warn",
		"Error",
	}
)

// Log levels accepted by SetLogLevel and IPMUTEX_LOG_LEVEL.
const (
	LevelTrace = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelNoPrint
)

func init() {
	level.Store(LevelWarn)
	if os.Getenv("IPMUTEX_LOG_LEVEL") != "" {
		if n, err := strconv.Atoi(os.Getenv("IPMUTEX_LOG_LEVEL")); err == nil {
			if n >= LevelTrace && n <= LevelNoPrint {
				level.Store(int32(n))
			}
		}
	}

	if os.Getenv("IPMUTEX_DEBUG_MODE") != "" {
		debugMode = true
	}
}

// SetLogLevel changes the internal logger's level. The default level is Warn.
// The process env `IPMUTEX_LOG_LEVEL` also sets it.
func SetLogLevel(l int) {
	if l >= LevelTrace && l <= LevelNoPrint {
		level.Store(int32(l))
	}
}

// SetLogOutput redirects the internal logger. A nil writer restores stderr.
// It may be called while other goroutines log; out must then be safe for
// concurrent writes.
func SetLogOutput(out io.Writer) {
	if out == nil {
		out = os.Stderr
	}
	internalLogger.out.Store(&logOutput{out})
}

func enabled(l int) bool {
	return int(level.Load()) <= l
}

func (l *logger) logf(lv int, format string, a ...interface{}) {
	if !enabled(lv) {
		return
	}
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	l.writePrefix(buf, lv)
	_, _ = fmt.Fprintf(buf, format, a...)
	_, _ = buf.WriteString(reset)
	_ = buf.WriteByte('\n')
	if _, err := l.out.Load().Write(buf.B); err != nil {
		fmt.Fprintf(os.Stderr, "logger write failed: %v\n", err)
	}
}

func (l *logger) errorf(format string, a ...interface{}) {
	l.logf(LevelError, format, a...)
}

func (l *logger) warnf(format string, a ...interface{}) {
	l.logf(LevelWarn, format, a...)
}

func (l *logger) infof(format string, a ...interface{}) {
	l.logf(LevelInfo, format, a...)
}

func (l *logger) debugf(format string, a ...interface{}) {
	l.logf(LevelDebug, format, a...)
}

func (l *logger) tracef(format string, a ...interface{}) {
	l.logf(LevelTrace, format, a...)
}

func (l *logger) writePrefix(buf *bytebufferpool.ByteBuffer, lv int) {
	_, _ = buf.WriteString(colors[lv])
	_, _ = buf.WriteString(levelName[lv])
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(time.Now().Format("2006-01-02 15:04:05.999999"))
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(l.location())
	_ = buf.WriteByte(' ')
	if l.name != "" {
		_, _ = buf.WriteString(l.name)
		_ = buf.WriteByte(' ')
	}
}

func (l *logger) location() string {
	_, file, line, ok := runtime.Caller(l.callDepth)
	if !ok {
		file = "???"
		line = 0
	}
	file = filepath.Base(file)
	return file + ":" + strconv.Itoa(line)
}
