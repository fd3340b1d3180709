package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cloudzz-dev/cldzchat/internal/client/api"
	"github.com/cloudzz-dev/cldzchat/internal/client/app"
	"github.com/cloudzz-dev/cldzchat/internal/client/events"
	"github.com/cloudzz-dev/cldzchat/internal/client/realtime"
	"github.com/cloudzz-dev/cldzchat/internal/client/session"
	"github.com/cloudzz-dev/cldzchat/internal/client/tui"
	"github.com/cloudzz-dev/cldzchat/internal/debug"
	"github.com/jessevdk/go-flags"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("main")

type Options struct {
	Server   string `short:"s" long:"server" env:"CLDZCHAT_SERVER" default:"http://localhost:8080" description:"base URL of the chat backend"`
	WSPath   string `long:"ws-path" default:"/ws" description:"path of the STOMP websocket endpoint"`
	Profile  string `short:"p" long:"profile" default:"default" description:"session profile name, lets several accounts run side by side"`
	LogLevel string `short:"l" long:"loglevel" default:"info" description:"set the logging level [debug, info, notice, warning, error, critical]"`
	LogFile  string `long:"logfile" description:"log file path (default: debug.log in the profile directory)"`
	Debug    bool   `short:"d" long:"debug" env:"CLDZCHAT_DEBUG" description:"write a debug log"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if err := run(opts); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts Options) error {
	store, err := session.New(opts.Profile)
	if err != nil {
		return err
	}

	// The terminal belongs to the UI, so logs only ever go to a file.
	logOpts := debug.Options{Level: opts.LogLevel}
	if opts.Debug || opts.LogFile != "" {
		logOpts.File = opts.LogFile
		if logOpts.File == "" {
			logOpts.File = filepath.Join(session.GetConfigDir(opts.Profile), "debug.log")
		}
	}
	if err := debug.Setup(logOpts); err != nil {
		return err
	}

	endpoint, err := realtime.Endpoint(opts.Server, opts.WSPath)
	if err != nil {
		return fmt.Errorf("invalid server url: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shared := events.NewShared()
	channel := realtime.New(endpoint, store, shared)

	var a *app.App
	gateway, err := api.New(opts.Server, store, api.WithUnauthorizedHandler(func() {
		a.HandleUnauthorized()
	}))
	if err != nil {
		return err
	}
	a = app.New(ctx, store, gateway, channel, shared)
	defer channel.Stop()

	log.Infof("starting client for %s (profile %s)", opts.Server, opts.Profile)

	model := tui.New(ctx, a)
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}
