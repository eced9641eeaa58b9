// issue-token mints a signed bearer token for local and staging API calls.
// Signing uses the same API_SECRET the server validates with, so a token
// minted here works against a server sharing that secret. Never point this at
// production secrets.
//
// Usage:
//   API_SECRET=... go run ./cmd/issue-token -user member-123
//   API_SECRET=... go run ./cmd/issue-token -user auditor-1 -staff
package main

import (
	"flag"
	"fmt"
	"os"

	"bitbucket.org/milpaydata/lesaudit_backend/utils"
)

func main() {
	userId := flag.String("user", "", "user id to embed in the token (required)")
	staff := flag.Bool("staff", false, "mint a staff token (unmasked access)")
	flag.Parse()

	if *userId == "" {
		fmt.Fprintln(os.Stderr, "usage: issue-token -user <id> [-staff]")
		os.Exit(1)
	}

	token, err := utils.JwtGenerate(*userId, *staff)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
