package main

import (
	"log"

	"github.com/elpekaan/eventgram-api/cmd"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
