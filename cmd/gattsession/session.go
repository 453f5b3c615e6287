package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/gattsession/internal/device"
	goble "github.com/srg/gattsession/internal/device/go-ble"
	"github.com/srg/gattsession/internal/groutine"
	"github.com/srg/gattsession/internal/session"
	"github.com/srg/gattsession/pkg/config"
	"golang.org/x/term"
)

// adapterFactory creates the hardware adapter (can be overridden in tests)
var adapterFactory = func(logger *logrus.Logger) device.Adapter {
	return goble.NewAdapter(logger)
}

// commandSession is a connected session plus what a command needs around it.
type commandSession struct {
	*session.Session

	ctx    context.Context
	cfg    *config.Config
	logger *logrus.Logger
	cmd    *cobra.Command

	stop        context.CancelFunc
	statusDone  <-chan struct{}
	events      *session.Stream[session.ConnectionEvent]
	interactive bool
}

// loadConfig reads --config if given, otherwise returns the defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, bool, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.DefaultConfig(), false, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

// openSession connects to address and waits for service discovery. Connection
// events are reported on stderr while the command runs. The caller must Close
// the returned session.
func openSession(cmd *cobra.Command, address string) (*commandSession, error) {
	cfg, fromFile, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := configureLogger(cmd, cfg, fromFile)
	if err != nil {
		return nil, err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)

	s := session.New(
		adapterFactory(logger),
		device.Peripheral{ID: address},
		session.WithOptions(cfg.Options()),
		session.WithLogger(logger),
	)
	cs := &commandSession{
		Session:     s,
		ctx:         ctx,
		cfg:         cfg,
		logger:      logger,
		cmd:         cmd,
		stop:        stop,
		events:      s.Events(),
		interactive: isTerminal(cmd.ErrOrStderr()),
	}
	cs.statusDone = groutine.Go(nil, "cli-status:"+address, cs.reportEvents)

	fmt.Fprintf(cmd.ErrOrStderr(), "Connecting to %s...\n", address)
	if _, err := s.Connect(cfg.Policy()).Await(ctx); err != nil {
		cs.Close()
		return nil, err
	}

	discovery := s.Discovery()
	if discovery == nil {
		discovery = s.DiscoverAllServices()
	}
	if _, err := discovery.Await(ctx); err != nil {
		cs.Close()
		return nil, fmt.Errorf("service discovery failed: %w", err)
	}
	return cs, nil
}

// Close disconnects and releases the session. Safe to call more than once.
func (cs *commandSession) Close() {
	cs.Session.Terminate()
	<-cs.statusDone
	cs.stop()
}

// reportEvents prints connection events until the session ends.
func (cs *commandSession) reportEvents(context.Context) {
	w := cs.cmd.ErrOrStderr()
	for ev := range cs.events.C() {
		c := eventColor(ev.Kind)
		if !cs.interactive {
			c.DisableColor()
		}
		fmt.Fprintf(w, "%s\n", c.Sprint(ev.String()))
	}
}

func eventColor(kind session.EventKind) *color.Color {
	switch kind {
	case session.EventConnect:
		return color.New(color.FgGreen)
	case session.EventTimeout, session.EventDisconnect:
		return color.New(color.FgYellow)
	case session.EventGiveUp, session.EventFailed, session.EventForceDisconnect:
		return color.New(color.FgRed)
	default:
		return color.New(color.Reset)
	}
}

// characteristic resolves charUUID, optionally scoped to serviceUUID. Without
// a service the characteristic must be unique across the device.
func (cs *commandSession) characteristic(serviceUUID, charUUID string) (*session.CharacteristicCoordinator, error) {
	if serviceUUID != "" {
		return cs.Characteristic(serviceUUID, charUUID)
	}

	want := device.NormalizeUUID(charUUID)
	var found []*session.CharacteristicCoordinator
	for _, c := range cs.Characteristics() {
		if c.UUID() == want {
			found = append(found, c)
		}
	}
	switch len(found) {
	case 0:
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{want}}
	case 1:
		return found[0], nil
	default:
		services := make([]string, 0, len(found))
		for _, c := range found {
			services = append(services, c.ServiceUUID())
		}
		return nil, fmt.Errorf("characteristic %s is ambiguous, use --service with one of: %s", want, strings.Join(services, ", "))
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
