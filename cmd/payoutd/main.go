package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ark-network/payoutd/internal/config"
	httpservice "github.com/ark-network/payoutd/internal/interface/http"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

//nolint:all
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	urlFlag = &cli.StringFlag{
		Name:  "url",
		Usage: "the url of the payoutd admin api",
		Value: fmt.Sprintf("http://localhost:%d", config.DefaultPort),
	}
)

var startCmd = &cli.Command{
	Name:   "start",
	Usage:  "Start the payout daemon",
	Action: startAction,
}

func startAction(_ *cli.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("invalid config: %s", err)
	}

	log.SetLevel(log.Level(cfg.LogLevel))

	svcConfig := httpservice.Config{
		Port: cfg.Port,
	}

	svc, err := httpservice.NewService(svcConfig, cfg)
	if err != nil {
		return err
	}

	log.RegisterExitHandler(svc.Stop)

	log.Info("starting service...")
	if err := svc.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, os.Interrupt)
	<-sigChan

	log.Info("shutting down service...")
	log.Exit(0)
	return nil
}

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	app.Name = "payoutd"
	app.Usage = "automated payout processing daemon"
	app.Flags = []cli.Flag{urlFlag}
	app.Commands = append(
		app.Commands,
		startCmd,
		processorsCmd,
		payoutsCmd,
	)
	app.DefaultCommand = startCmd.Name

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
