package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/lox/vrfjack/internal/config"
	"github.com/lox/vrfjack/internal/ledger"
	"github.com/lox/vrfjack/internal/server"
)

// TokenCmd prints a bearer token signed with VRFJACK_JWT_SECRET
type TokenCmd struct {
	Account string        `arg:"" help:"Account the token acts for"`
	TTL     time.Duration `default:"24h" help:"Token lifetime (0 never expires)"`
	Env     string        `default:".env" help:"Dotenv file with secrets"`
}

func (c *TokenCmd) Run() error {
	return c.run(os.Stdout, time.Now())
}

func (c *TokenCmd) run(out io.Writer, now time.Time) error {
	cfg := config.Default()
	if err := cfg.LoadEnv(c.Env); err != nil {
		return err
	}
	auth, err := server.NewTokenAuth(cfg.Secrets.JWTSecret)
	if err != nil {
		return fmt.Errorf("%w (set VRFJACK_JWT_SECRET)", err)
	}
	token, err := server.IssueToken(auth, ledger.AccountID(c.Account), c.TTL, now)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
