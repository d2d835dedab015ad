package main

import (
	"log"
	"os"

	"github.com/abiiranathan/doclib/cli"
	"github.com/abiiranathan/doclib/library"
	"github.com/abiiranathan/doclib/search"
	"github.com/abiiranathan/doclib/store"
)

func main() {
	log.SetPrefix("[doclib]: ")
	log.SetFlags(log.Lshortfile)

	config := cli.LoadConfig()

	contentStore, err := store.New(config.Root)
	if err != nil {
		log.Fatalln(err)
	}

	lib := library.New(config.Root)
	defer lib.Close()

	// A corrupted index with no usable backup starts empty rather than
	// refusing to run.
	if err := lib.Load(); err != nil {
		log.Printf("starting with an empty index: %v\n", err)
	}

	app := &cli.App{
		Store:  contentStore,
		Lib:    lib,
		Engine: search.NewEngine(lib, contentStore),
		Config: config,
	}

	ctx := cli.DefineFlags(app)
	subcmd, err := ctx.Parse(os.Args)
	if err != nil {
		log.Fatalln(err)
	}

	if subcmd == nil {
		ctx.PrintUsage(os.Stdout)
		os.Exit(1)
	}

	subcmd.Handler()
}
