// Command admintoken hashes an admin token for use in ADMIN_TOKEN_HASH.
//
// The server never stores the token itself. Run this tool, paste the
// resulting hash into the environment, and send the plaintext token as a
// Bearer credential on admin requests.
package main

import (
	"bytes"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

const minTokenLength = 12

func main() {
	if len(os.Args) > 1 {
		printUsage()
		os.Exit(1)
	}

	if !generateHash() {
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Admin Token Hash Generator")
	fmt.Println("")
	fmt.Println("Usage: admintoken")
	fmt.Println("")
	fmt.Println("Prompts for a token and prints its bcrypt hash.")
	fmt.Println("Set the hash as ADMIN_TOKEN_HASH to enable admin endpoints.")
}

func generateHash() bool {
	fmt.Print("Admin Token: ")
	token, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading token: %v\n", err)
		return false
	}

	fmt.Print("Confirm Token: ")
	confirm, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading token: %v\n", err)
		return false
	}

	if !bytes.Equal(token, confirm) {
		fmt.Fprintln(os.Stderr, "Error: Tokens do not match")
		return false
	}

	if len(token) < minTokenLength {
		fmt.Fprintf(os.Stderr, "Error: Token must be at least %d characters\n", minTokenLength)
		return false
	}

	hash, err := bcrypt.GenerateFromPassword(token, bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to hash token: %v\n", err)
		return false
	}

	fmt.Println("")
	fmt.Println("Set this in the server environment:")
	fmt.Printf("ADMIN_TOKEN_HASH='%s'\n", string(hash))
	return true
}
