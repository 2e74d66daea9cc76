// Package main is a utility for generating bcrypt hashes of book passwords.
// The vault stores only bcrypt hashes of access passwords, so this tool is used
// when seeding a standing password directly in the database without going
// through the staff API. The password is read from the first argument, or from
// stdin when no argument is given so it stays out of shell history.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/grendelpress/manuscript-vault/internal/auth"
)

func main() {
	cost := flag.Int("cost", auth.DefaultBcryptCost, "bcrypt cost factor")
	flag.Parse()

	password := flag.Arg(0)
	if password == "" {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			log.Fatalf("failed to read password from stdin: %v", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		log.Fatal("password is required")
	}

	hash, err := auth.HashPassword(password, *cost)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}
	fmt.Println(hash)
}
