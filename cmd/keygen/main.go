package main

import (
	"fmt"
	"log"

	"github.com/dmitrymomot/twofa/pkg/secrets"
)

func main() {
	// Generate a base64-encoded master key for environment variables
	encodedKey, err := secrets.GenerateEncodedKey()
	if err != nil {
		log.Fatalf("Failed to generate encoded master key: %v", err)
	}

	fmt.Printf("Generated Encoded Master Key (for TWOFA_MASTER_KEY env var): \n———\n%s\n———\n", encodedKey)
}
