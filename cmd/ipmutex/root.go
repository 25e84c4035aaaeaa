package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/srediag/ipmutex/pkg/health"
	"github.com/srediag/ipmutex/pkg/ipmutex"
	"github.com/srediag/ipmutex/pkg/lifecycle"
)

const version = "0.1.0"

var (
	rootCmd = &cobra.Command{
		Use:   "ipmutex [key]",
		Short: "Hold a named cross-process mutex",
		Long: `ipmutex acquires the mutex named by key, holds it for a while and releases it.

Without a key the process id is used, so separately started instances only
contend when given the same explicit key. The instance that created the
shared memory object keeps running afterwards and reads commands from stdin:
"r" holds the lock again, "q" quits and removes the object.`,
		Args:              cobra.MaximumNArgs(1),
		PersistentPreRunE: bindFlags,
		RunE:              runDemo,
		SilenceUsage:      true,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of ipmutex",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ipmutex v%s\n", version)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(stressCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(removeCmd)

	rootCmd.PersistentFlags().String("shm-dir", "", "directory of the shared memory namespace (default /dev/shm on Linux)")
	rootCmd.PersistentFlags().Duration("probe-interval", 0, "how often a blocked lock checks that the holder is alive")
	rootCmd.PersistentFlags().Bool("skip-space-check", false, "do not check free space before creating the object")
	rootCmd.PersistentFlags().Int("log-level", ipmutex.LevelWarn, "log level, 0 (trace) to 5 (silent)")

	rootCmd.Flags().Int("hold", 10, "number of ticks to hold the lock for")
	rootCmd.Flags().Duration("tick", time.Second, "length of one tick")
	rootCmd.Flags().String("health-addr", "", "serve /live, /ready and /metrics on this address")
}

func keyArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func runDemo(cmd *cobra.Command, args []string) error {
	config, err := lockConfig()
	if err != nil {
		return err
	}

	guard := lifecycle.NewGuard()
	defer guard.Close()
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	guard.Watch(ctx, func(os.Signal) { os.Exit(130) }, os.Interrupt, syscall.SIGTERM)

	locks := ipmutex.NewRegistry(config)
	mu, err := locks.Open(keyArg(args))
	if err != nil {
		return err
	}
	guard.Add(locks.Close)

	if addr := viper.GetString("health-addr"); addr != "" {
		srv, err := serveHealth(addr, locks, config.Dir)
		if err != nil {
			return err
		}
		guard.Add(func() { _ = srv.Close() })
	}

	d := &demo{
		out:  cmd.OutOrStdout(),
		in:   cmd.InOrStdin(),
		pid:  os.Getpid(),
		hold: viper.GetInt("hold"),
		tick: viper.GetDuration("tick"),
	}
	return d.run(mu)
}

func serveHealth(addr string, locks *ipmutex.Registry, dir string) (*http.Server, error) {
	reg := prometheus.NewRegistry()
	if err := ipmutex.RegisterMetrics(reg); err != nil {
		return nil, err
	}
	h := health.NewHandler(locks, health.Options{
		Registerer: reg,
		Namespace:  "ipmutex",
		Dir:        dir,
	})
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "health server: %v\n", err)
		}
	}()
	return srv, nil
}

// ownedLocker is what the demo needs from a mutex.
type ownedLocker interface {
	ipmutex.Locker
	IsOwner() bool
}

type demo struct {
	out  io.Writer
	in   io.Reader
	pid  int
	hold int
	tick time.Duration
}

// run holds the lock once and, for the owner, keeps serving commands so the
// object outlives the other participants.
func (d *demo) run(mu ownedLocker) error {
	fmt.Fprintf(d.out, "process(%d) : try to lock\n", d.pid)
	if err := d.holdOnce(mu); err != nil {
		return err
	}
	if !mu.IsOwner() {
		return nil
	}

	scanner := bufio.NewScanner(d.in)
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		switch scanner.Text() {
		case "q":
			return nil
		case "r":
			if err := d.holdOnce(mu); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}

func (d *demo) holdOnce(mu ipmutex.Locker) error {
	if err := mu.Lock(); err != nil {
		if !errors.Is(err, ipmutex.ErrOwnerDead) {
			return err
		}
		fmt.Fprintf(d.out, "process(%d) : %v\n", d.pid, err)
	}
	defer mu.Unlock()

	fmt.Fprintf(d.out, "process(%d) : get lock\n", d.pid)
	for i := 0; i < d.hold; i++ {
		time.Sleep(d.tick)
		fmt.Fprintf(d.out, "process(%d) : Holding lock for %d seconds...\n", d.pid, i)
	}
	return nil
}
