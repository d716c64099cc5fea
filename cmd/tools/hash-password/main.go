package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ninechan-dev/ninechan/internal/identity"
)

// Reads a password from stdin and prints an accounts entry for private.yaml.
func main() {
	if len(os.Args) != 2 {
		log.Fatalf("usage: %s <username> < password.txt", os.Args[0])
	}
	username := os.Args[1]

	password, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && password == "" {
		log.Fatalf("Failed to read password: %v", err)
	}
	password = strings.TrimRight(password, "\r\n")
	if password == "" {
		log.Fatal("Password must not be empty")
	}

	hash, err := identity.HashPassword(password)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	fmt.Println("Add this under accounts in config/private.yaml:")
	fmt.Println()
	fmt.Printf("  %s:\n", username)
	fmt.Printf("    password_hash: \"%s\"\n", hash)
	fmt.Println("    avatar_url: \"\"")
}
