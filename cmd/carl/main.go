package main

import (
	"github.com/opendut/carl/cmd/carl/app"
	"github.com/opendut/carl/pkg/log"
)

func main() {
	if err := app.NewCommand().Execute(); err != nil {
		log.Fatalf("%+v", err)
	}
}
