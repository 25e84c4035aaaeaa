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
	"bytes"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/srediag/ipmutex/internal/shm"
)

type DebugTestSuite struct {
	suite.Suite
	buf   *bytes.Buffer
	saved int32
}

func (s *DebugTestSuite) SetupTest() {
	s.buf = &bytes.Buffer{}
	s.saved = level.Load()
	SetLogOutput(s.buf)
}

func (s *DebugTestSuite) TearDownTest() {
	SetLogOutput(nil)
	level.Store(s.saved)
}

func (s *DebugTestSuite) TestLogColor() {
	SetLogLevel(LevelTrace)

	internalLogger.tracef("this is tracef %s", "hello world")
	internalLogger.debugf("this is debugf %s", "hello world")
	internalLogger.infof("this is infof %s", "hello world")
	internalLogger.warnf("this is warnf %s", "hello world")
	internalLogger.errorf("this is errorf %s", "hello world")

	lines := strings.Split(strings.TrimSpace(s.buf.String()), "\n")
	s.Require().Len(lines, 5)
	for i, name := range levelName {
		s.True(strings.HasPrefix(lines[i], colors[i]+name+" "), lines[i])
		s.True(strings.HasSuffix(lines[i], "hello world"+reset), lines[i])
		s.Contains(lines[i], "debug_test.go:")
	}
}

func (s *DebugTestSuite) TestLevelGating() {
	SetLogLevel(LevelWarn)
	internalLogger.infof("hidden")
	internalLogger.warnf("shown")
	s.NotContains(s.buf.String(), "hidden")
	s.Contains(s.buf.String(), "shown")

	SetLogLevel(LevelNoPrint)
	internalLogger.errorf("silent")
	s.NotContains(s.buf.String(), "silent")

	// out of range levels are ignored
	SetLogLevel(42)
	s.Equal(int32(LevelNoPrint), level.Load())
}

func (s *DebugTestSuite) TestCloseLogsRemoval() {
	SetLogLevel(LevelInfo)
	mu, err := NewWithConfig("logged", testConfig(s.T().TempDir()))
	s.Require().NoError(err)
	mu.Close()
	s.Contains(s.buf.String(), "created "+mu.Path())
	s.Contains(s.buf.String(), "removed "+mu.Path())
}

func (s *DebugTestSuite) TestTakeOverIsTraced() {
	SetLogLevel(LevelTrace)
	config := testConfig(s.T().TempDir())
	a, err := NewWithConfig("traced", config)
	s.Require().NoError(err)
	defer a.Close()
	b, err := NewWithConfig("traced", config)
	s.Require().NoError(err)
	defer b.Close()

	dead := exec.Command("true")
	if err := dead.Run(); err != nil {
		s.T().Skipf("cannot run true: %v", err)
	}
	s.Require().True(a.TryLock())
	// pretend the holder was a process that has exited since
	shm.AtomicStoreUint32(a.word.holder, uint32(dead.Process.Pid))

	s.ErrorIs(b.Lock(), ErrOwnerDead)
	b.Unlock()
	s.Contains(s.buf.String(), fmt.Sprintf("probing holder %d", dead.Process.Pid))
	s.Contains(s.buf.String(), "exited while holding the lock")
}

func (s *DebugTestSuite) TestSetLogOutputWhileLogging() {
	SetLogLevel(LevelInfo)
	outs := [2]*lockedBuffer{{}, {}}
	const writers, lines = 4, 200

	SetLogOutput(outs[0])
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < lines; i++ {
				internalLogger.infof("line %d", i)
			}
		}()
	}
	for i := 0; i < 100; i++ {
		SetLogOutput(outs[i%2])
	}
	wg.Wait()
	SetLogOutput(s.buf)

	s.Equal(writers*lines, outs[0].lines()+outs[1].lines())
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) lines() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Count(b.buf.String(), "\n")
}

func TestDebugTestSuite(t *testing.T) {
	suite.Run(t, new(DebugTestSuite))
}
