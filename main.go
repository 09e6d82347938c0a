package main

import (
	"log"

	"github.com/fede1024/kafka-view-sub000/core"
)

func main() {
	if err := core.StartServer(); err != nil {
		log.Fatalf("kafka-view: %v", err)
	}
}
