package main

import (
	"log"

	"nhbmarket/services/auctiond"
)

func main() {
	if err := auctiond.Main(); err != nil {
		log.Fatalf("auctiond: %v", err)
	}
}
