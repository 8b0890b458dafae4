package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/poleshift/internal/buildinfo"
	"github.com/dmitrijs2005/poleshift/internal/worker"
	"github.com/dmitrijs2005/poleshift/internal/worker/config"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := worker.NewApp(cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)

}
