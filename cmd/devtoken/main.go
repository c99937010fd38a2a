// Command devtoken prints a signed access token for local development.
//
//	devtoken -sub 2 -role DEALER [-ttl 1h]
//
// The secret is read from JWT_SECRET (or a .env file).
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/dealer-syndication/internal/model"
	"github.com/iliyamo/dealer-syndication/internal/utils"
)

func main() {
	fs := flag.NewFlagSet("devtoken", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	sub := fs.Uint64("sub", 0, "actor id (JWT sub)")
	role := fs.String("role", "", "BUYER, DEALER, TIPPER or ADMIN")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	r := model.Role(strings.ToUpper(*role))
	switch {
	case secret == "":
		fail("JWT_SECRET is not set")
	case *sub == 0:
		fail("-sub is required")
	case !r.Valid():
		fail("-role must be one of BUYER, DEALER, TIPPER, ADMIN")
	}

	tok, err := utils.NewAccessToken(secret, *sub, r, *ttl)
	if err != nil {
		fail("sign: " + err.Error())
	}
	_ = json.NewEncoder(os.Stdout).Encode(tok)
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, "devtoken: "+msg)
	os.Exit(2)
}
