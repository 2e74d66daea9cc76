//go:build ignore

// Package main is a development utility that generates a download token secret
// and a staff JWT for a local vault. It prints the secrets as MSV_ environment
// variables plus a ready-to-use Authorization header carrying every author
// scope. Do not use generated tokens in production; staff tokens there come
// from the identity provider.
//
// Usage: go run scripts/generate-key.go [staff-email]
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/grendelpress/manuscript-vault/internal/auth"
)

func randomSecret() string {
	b := make([]byte, 48)
	if _, err := rand.Read(b); err != nil {
		log.Fatal(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func main() {
	email := "author@dev.local"
	if len(os.Args) > 1 {
		email = os.Args[1]
	}

	downloadSecret := randomSecret()
	staffSecret := randomSecret()

	token, err := auth.GenerateStaffJWT(staffSecret, "", "dev-author", email, auth.AuthorScopes(), 24*time.Hour, time.Now())
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("==========================================================")
	fmt.Println("Development Secrets Generated")
	fmt.Println("==========================================================")
	fmt.Printf("\nMSV_DOWNLOAD_TOKEN_SECRET=%s\n", downloadSecret)
	fmt.Printf("MSV_STAFF_AUTH_JWT_SECRET=%s\n", staffSecret)
	fmt.Println("\n==========================================================")
	fmt.Printf("Staff token for %s (valid 24h):\n", email)
	fmt.Println("==========================================================")
	fmt.Printf("Authorization: Bearer %s\n", token)
	fmt.Println("==========================================================")
}
