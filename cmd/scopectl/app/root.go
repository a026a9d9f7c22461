// Package app implements the scopectl command tree: one-shot operator
// commands against a Keysight oscilloscope, sharing the connection flags.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/matteovidali/Keysight-Scope-Tools/internal/config"
	"github.com/matteovidali/Keysight-Scope-Tools/internal/scope"
	"github.com/matteovidali/Keysight-Scope-Tools/internal/visa"
)

var opts = struct {
	resource string
	conf     string
	timeout  time.Duration
	points   int
	loud     bool
}{}

// NewScopectlCommand builds the root command with all subcommands attached.
func NewScopectlCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "scopectl",
		Short:         "scopectl: drive a Keysight oscilloscope from the command line",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.resource, "resource", "r", "", "VISA resource string (e.g. TCPIP0::192.168.0.17::5025::SOCKET)")
	pf.StringVarP(&opts.conf, "config", "c", "", "config file providing the resource when -r is absent")
	pf.DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall command timeout")
	pf.IntVar(&opts.points, "points", scope.DefaultCapturePoints, "samples per waveform transfer")
	pf.BoolVarP(&opts.loud, "loud", "l", false, "log every command and response")

	root.AddCommand(
		newListCommand(),
		newIdnCommand(),
		newCaptureCommand(),
		newSetupCommand(),
		newRawCommand(),
	)
	return root
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if opts.loud {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.WarnLevel)
	}
	return log
}

func loadResources() ([]string, *config.Config, error) {
	var cfg *config.Config
	if opts.conf != "" {
		var err error
		cfg, err = config.LoadConfig(opts.conf)
		if err != nil {
			return nil, nil, err
		}
	} else {
		cfg = config.GetDefaultConfig()
	}

	if opts.resource != "" {
		return []string{opts.resource}, cfg, nil
	}
	if opts.conf != "" {
		return cfg.ResourceList(), cfg, nil
	}
	return nil, cfg, fmt.Errorf("no resource given: use -r or -c")
}

// connect dials the instrument and identifies it. The returned cancel
// bounds the whole command.
func connect() (context.Context, context.CancelFunc, *scope.Scope, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)

	resources, cfg, err := loadResources()
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}

	log := newLogger()
	rm, err := visa.NewResourceManager(resources, &visa.SessionOptions{
		DialTimeout:  cfg.Scope.DialTimeout.Std(),
		ReadTimeout:  cfg.Scope.ReadTimeout.Std(),
		WriteTimeout: cfg.Scope.WriteTimeout.Std(),
		KeepAlive:    cfg.Scope.KeepAlive.Std(),
	}, log)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}

	sess, err := rm.Open(ctx)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}

	scp, err := scope.Connect(ctx, sess, scope.Options{CapturePoints: opts.points}, log)
	if err != nil {
		sess.Close()
		cancel()
		return nil, nil, nil, err
	}
	return ctx, cancel, scp, nil
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the configured instrument resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			resources, _, err := loadResources()
			if err != nil {
				return err
			}
			log := newLogger()
			rm, err := visa.NewResourceManager(resources, nil, log)
			if err != nil {
				return err
			}
			for i, r := range rm.ListResources() {
				fmt.Printf("%d: %s\n", i+1, r)
			}
			return nil
		},
	}
}

func newIdnCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "idn",
		Short: "Identify the instrument (*IDN?)",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cancel, scp, err := connect()
			if err != nil {
				return err
			}
			defer cancel()
			defer scp.Close()

			fmt.Println(scp.Identity())
			return nil
		},
	}
}

func newRawCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "raw <scpi-string>",
		Short: "Send a raw SCPI command or query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel, scp, err := connect()
			if err != nil {
				return err
			}
			defer cancel()
			defer scp.Close()

			resp, err := scp.Raw(ctx, args[0])
			if err != nil {
				return err
			}
			if resp != "" {
				fmt.Println(resp)
			}
			return nil
		},
	}
}
