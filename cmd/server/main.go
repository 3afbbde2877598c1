package main

import (
	"log"

	"visgw/internal/server"
)

func main() {
	s, err := server.NewServer()
	if err != nil {
		log.Fatalf("Failed to initialize server: %v", err)
	}

	s.Run()
}
