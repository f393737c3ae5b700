package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

const (
	logLevelFlag = "log-level"
	logJSONFlag  = "log-json"
)

func main() {
	app := cli.NewApp()
	app.Name = "audio-resolver"
	app.Usage = "finds audio torrents and resolves them to stream urls"
	app.Version = "0.0.1"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   logLevelFlag,
			Usage:  "log level",
			Value:  log.InfoLevel.String(),
			EnvVar: "LOG_LEVEL",
		},
		cli.BoolFlag{
			Name:   logJSONFlag,
			Usage:  "log in json format",
			EnvVar: "LOG_JSON",
		},
	}
	app.Before = configureLog
	configure(app)
	err := app.Run(os.Args)
	if err != nil {
		log.WithError(err).Fatal("failed to run application")
	}
}

func configureLog(c *cli.Context) error {
	level, err := log.ParseLevel(c.GlobalString(logLevelFlag))
	if err != nil {
		return err
	}
	log.SetLevel(level)
	if c.GlobalBool(logJSONFlag) {
		log.SetFormatter(&log.JSONFormatter{})
	}
	return nil
}
