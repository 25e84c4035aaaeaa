package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/panjf2000/ants/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/srediag/ipmutex/pkg/ipmutex"
)

var stressCmd = &cobra.Command{
	Use:   "stress [key]",
	Short: "Contend on a mutex from many workers through two mappings",
	Long: `stress maps the object for key twice and lets a pool of workers lock and
unlock it through both mappings. It fails if two workers are ever inside the
critical section at the same time.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStress,
}

func init() {
	stressCmd.Flags().Int("workers", 8, "number of concurrent workers")
	stressCmd.Flags().Int("iterations", 1000, "lock/unlock cycles per worker")
}

// acquisition is reported by a worker for every critical section it entered.
type acquisition struct {
	worker   int
	instance int
	wait     time.Duration
}

type stressResult struct {
	acquisitions int
	// counter is incremented inside every critical section with a separate
	// load and store; it falls short of acquisitions if sections overlapped.
	counter     int64
	violations  int64
	maxWait     time.Duration
	perInstance [2]int
}

func runStress(cmd *cobra.Command, args []string) error {
	config, err := lockConfig()
	if err != nil {
		return err
	}
	key := keyArg(args)
	if key == "" {
		key = "ipmutex-stress-" + strconv.Itoa(os.Getpid())
	}
	first, err := ipmutex.NewWithConfig(key, config)
	if err != nil {
		return err
	}
	defer first.Close()
	second, err := ipmutex.NewWithConfig(key, config)
	if err != nil {
		return err
	}
	defer second.Close()

	res, err := stress([2]ipmutex.Locker{first, second}, viper.GetInt("workers"), viper.GetInt("iterations"))
	if err != nil {
		return err
	}
	printStress(cmd.OutOrStdout(), first.Key(), res)
	if res.violations > 0 {
		return fmt.Errorf("mutual exclusion violated %d times", res.violations)
	}
	return nil
}

func stress(instances [2]ipmutex.Locker, workers, iterations int) (*stressResult, error) {
	if workers <= 0 || iterations <= 0 {
		return nil, errors.New("workers and iterations must be positive")
	}
	pool, err := ants.NewPool(workers, ants.WithPreAlloc(true))
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	events := queue.NewRingBuffer(uint64(workers * 4))
	defer events.Dispose()

	res := &stressResult{}
	var inside atomic.Int32
	total := workers * iterations

	reported := make(chan struct{})
	go func() {
		defer close(reported)
		for i := 0; i < total; i++ {
			item, err := events.Get()
			if err != nil {
				return
			}
			a := item.(acquisition)
			res.acquisitions++
			res.perInstance[a.instance]++
			if a.wait > res.maxWait {
				res.maxWait = a.wait
			}
		}
	}()

	var (
		wg        sync.WaitGroup
		errOnce   sync.Once
		workerErr error
	)
	for w := 0; w < workers; w++ {
		w := w
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				idx := (w + i) % 2
				mu := instances[idx]
				start := time.Now()
				if err := mu.Lock(); err != nil {
					errOnce.Do(func() { workerErr = err })
					return
				}
				wait := time.Since(start)
				if inside.Add(1) > 1 {
					atomic.AddInt64(&res.violations, 1)
				}
				v := atomic.LoadInt64(&res.counter)
				runtime.Gosched()
				atomic.StoreInt64(&res.counter, v+1)
				inside.Add(-1)
				mu.Unlock()
				if err := events.Put(acquisition{worker: w, instance: idx, wait: wait}); err != nil {
					return
				}
			}
		}); err != nil {
			wg.Done()
			return nil, err
		}
	}
	wg.Wait()

	if workerErr != nil {
		events.Dispose()
		<-reported
		return nil, workerErr
	}
	<-reported
	if lost := int64(total) - res.counter; lost > 0 {
		res.violations += lost
	}
	return res, nil
}

func printStress(out io.Writer, key string, res *stressResult) {
	fmt.Fprintf(out, "key:%s acquisitions:%d counter:%d violations:%d max-wait:%v first:%d second:%d\n",
		key, res.acquisitions, res.counter, res.violations, res.maxWait, res.perInstance[0], res.perInstance[1])
}
