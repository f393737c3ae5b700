package main

import (
	"github.com/urfave/cli"
)

func configure(app *cli.App) {
	serveCMD := makeServeCMD()
	searchCMD := makeSearchCMD()
	resolveCMD := makeResolveCMD()
	app.Commands = []cli.Command{serveCMD, searchCMD, resolveCMD}
}
