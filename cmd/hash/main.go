// Package main generates service keys for other services. Only the bcrypt hash goes
// into the projectns configuration (auth.service_keys[].hash); the key itself is
// handed to the calling service and never stored by projectns.
//
// Usage:
//
//	hash            generate a new pns_ key and print it with its hash
//	hash <key>      print the hash of an existing key
package main

import (
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"

	"github.com/projectns/projectns/internal/auth"
)

func main() {
	if len(os.Args) > 1 {
		hash, err := bcrypt.GenerateFromPassword([]byte(os.Args[1]), auth.BcryptCost)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(hash))
		return
	}

	key, hash, prefix, err := auth.GenerateServiceKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("key:    %s\n", key)
	fmt.Printf("hash:   %s\n", hash)
	fmt.Printf("prefix: %s (shown in logs)\n", prefix)
}
