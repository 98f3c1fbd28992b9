// enc cifra un secreto (client secret, private key PEM) con la master key
// de secretbox, para pegarlo en una provider config.
//
//	SECRETBOX_MASTER_KEY=... enc < secret.txt
//	SECRETBOX_MASTER_KEY=... enc "mi-client-secret"
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	sec "github.com/dropDatabas3/idbridge/internal/security/secretbox"
)

func main() {
	_ = godotenv.Load(".env")
	if !sec.Ready() {
		log.Fatal("SECRETBOX_MASTER_KEY not set")
	}

	var plain string
	if len(os.Args) > 1 {
		plain = os.Args[1]
	} else {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			log.Fatalf("read stdin: %v", err)
		}
		plain = strings.TrimRight(string(b), "\n")
	}
	if plain == "" {
		log.Fatal("nothing to encrypt")
	}

	enc, err := sec.Encrypt(plain)
	if err != nil {
		log.Fatalf("encrypt: %v", err)
	}
	fmt.Println(enc)
}
