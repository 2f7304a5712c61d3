package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/odyssey-erp/odyssey-procure/internal/auth"
)

// UserCreator provisions accounts.
type UserCreator interface {
	CreateUser(ctx context.Context, in auth.NewUser) (*auth.User, error)
}

// UsersCLI manages user accounts from the command line.
type UsersCLI struct {
	users  UserCreator
	Stdout io.Writer
	Stderr io.Writer
}

// NewUsersCLI constructs the helper.
func NewUsersCLI(users UserCreator) *UsersCLI {
	return &UsersCLI{users: users, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Run executes "create --email --name --role [--password] [--json]".
// The password falls back to ODYSSEY_USER_PASSWORD so it stays out of shell history.
func (c *UsersCLI) Run(ctx context.Context, args []string) int {
	if len(args) == 0 || args[0] != "create" {
		_, _ = fmt.Fprintln(c.Stderr, "usage: users create --email <email> --name <name> --role <role> [--password <pw>] [--json]")
		return 2
	}
	fs := flag.NewFlagSet("users create", flag.ContinueOnError)
	fs.SetOutput(c.Stderr)
	email := fs.String("email", "", "login email")
	name := fs.String("name", "", "display name")
	role := fs.String("role", "", "role name")
	password := fs.String("password", os.Getenv("ODYSSEY_USER_PASSWORD"), "initial password")
	asJSON := fs.Bool("json", false, "print the created profile as JSON")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	user, err := c.users.CreateUser(ctx, auth.NewUser{Email: *email, Name: *name, Password: *password, Role: *role})
	if err != nil {
		_, _ = fmt.Fprintf(c.Stderr, "users create: %v\n", err)
		return 1
	}
	if *asJSON {
		profile := auth.Profile{ID: user.ID, Email: user.Email, Name: user.Name, Role: user.Role, Permissions: user.Permissions}
		if err := json.NewEncoder(c.Stdout).Encode(profile); err != nil {
			_, _ = fmt.Fprintf(c.Stderr, "users create: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(c.Stdout, "created user %s (%s) role=%s\n", user.Email, user.ID, user.Role)
	return 0
}
