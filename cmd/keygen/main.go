package main

// Print a fresh ENCRYPTION_KEY:
//   go run ./cmd/keygen

import (
	"encoding/base64"
	"fmt"
	"os"

	"image-vault/internal/cryptox"
)

func main() {
	key, err := cryptox.GenerateKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate key: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("ENCRYPTION_KEY=%s\n", base64.StdEncoding.EncodeToString(key))
}
