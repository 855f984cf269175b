// Command dsim-echo runs the echo demo application under the
// simulation kernel, reading its configuration from a YAML file and
// printing an end-of-run stats summary.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/dsim-project/dsim"
	"github.com/dsim-project/dsim/examples/echo"
)

// slogLogger wraps *slog.Logger as a dsim.Logger.
type slogLogger struct {
	l *slog.Logger
}

func (s slogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s slogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }
func (s slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }

func main() {
	confPath := flag.String("conf", "echo.yaml", "simulation config file")
	fanout := flag.Int("fanout", 2, "number of echoes sent per cycle")
	cycles := flag.Uint("cycles", 10, "number of echo cycles per process")
	period := flag.Int("period", 100, "ticks between echo cycles")
	statusAddr := flag.String("status-addr", "", "address to serve /status and /healthz on, empty disables")
	flag.Parse()

	echo.Register()

	logger := slogLogger{slog.New(slog.NewTextHandler(os.Stderr, nil))}

	if err := run(*confPath, *fanout, uint16(*cycles), int32(*period), *statusAddr, logger); err != nil {
		fmt.Fprintf(os.Stderr, "dsim-echo: %v\n", err)
		os.Exit(-1)
	}
}

func run(confPath string, fanout int, cycles uint16, period int32, statusAddr string, logger dsim.Logger) error {
	conf, err := dsim.LoadConf(confPath)
	if err != nil {
		return err
	}

	echoConf := &echo.Conf{
		N:      dsim.ProcessID(conf.N),
		Fanout: fanout,
		Cycles: cycles,
		Period: dsim.Time(period),
	}

	var apps []dsim.Application
	if conf.Load == "" {
		apps = make([]dsim.Application, conf.N)
		for i := range apps {
			apps[i] = echo.New(dsim.ProcessID(i), echoConf)
		}
	}

	opts := []dsim.Option{dsim.WithLogger(logger)}
	if statusAddr != "" {
		opts = append(opts, dsim.WithStatusServer(statusAddr))
	}

	kernel, err := dsim.New(conf, apps, opts...)
	if err != nil {
		return err
	}

	if err := kernel.Run(context.Background()); err != nil {
		return err
	}

	sent, received, maxReceived := echo.Stats(kernel.Apps())
	fmt.Printf("echoes sent:     %v\n", sent)
	fmt.Printf("echoes received: %v\n", received)
	fmt.Printf("max received:    %d\n", maxReceived)
	return nil
}
