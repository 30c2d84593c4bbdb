// Package seed creates the initial accounts of a fresh installation.
package seed

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/flagx"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
	"golang.org/x/term"
)

const (
	DefaultAdminEmail = "admin@example.com"
	DefaultUserEmail  = "user@example.com"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// Account is one user to create if absent.
type Account struct {
	Email    string
	Name     string
	Password string
	Role     models.Role
}

type Options struct {
	AdminEmail    string
	AdminPassword string
	WithUser      bool
	UserEmail     string
	UserPassword  string
}

// ParseOptions reads the seed flags from args, ignoring any others.
//
//	-admin-email string     admin account email ("admin@example.com")
//	-admin-password string  admin password; prompted when empty
//	-with-user              also create a regular user
//	-user-email string      regular user email ("user@example.com")
//	-user-password string   regular user password; prompted when empty
func ParseOptions(args []string) (Options, error) {
	o := Options{AdminEmail: DefaultAdminEmail, UserEmail: DefaultUserEmail}

	args = flagx.FilterArgs(args, []string{
		"-admin-email", "-admin-password", "-with-user", "-user-email", "-user-password",
	})

	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&o.AdminEmail, "admin-email", o.AdminEmail, "admin account email")
	fs.StringVar(&o.AdminPassword, "admin-password", "", "admin account password")
	fs.BoolVar(&o.WithUser, "with-user", false, "also create a regular user")
	fs.StringVar(&o.UserEmail, "user-email", o.UserEmail, "regular user email")
	fs.StringVar(&o.UserPassword, "user-password", "", "regular user password")

	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}
	return o, nil
}

// PromptPassword asks for a password on the terminal without echo.
func PromptPassword(w io.Writer, label string) (string, error) {
	if _, err := fmt.Fprintf(w, "Enter password for %s: ", label); err != nil {
		return "", err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

// Accounts lists the accounts to seed, prompting for missing passwords.
func (o Options) Accounts(w io.Writer) ([]Account, error) {
	admin := Account{Email: o.AdminEmail, Name: "Admin User", Password: o.AdminPassword, Role: models.RoleAdmin}
	accounts := []Account{admin}
	if o.WithUser {
		accounts = append(accounts, Account{Email: o.UserEmail, Name: "Regular User", Password: o.UserPassword, Role: models.RoleUser})
	}

	for i := range accounts {
		if accounts[i].Password != "" {
			continue
		}
		pw, err := PromptPassword(w, accounts[i].Email)
		if err != nil {
			return nil, fmt.Errorf("read password: %w", err)
		}
		if strings.TrimSpace(pw) == "" {
			return nil, fmt.Errorf("empty password for %s", accounts[i].Email)
		}
		accounts[i].Password = pw
	}
	return accounts, nil
}

type Seeder struct {
	users *services.UserService
	out   io.Writer
}

func NewSeeder(users *services.UserService, out io.Writer) *Seeder {
	if out == nil {
		out = io.Discard
	}
	return &Seeder{users: users, out: out}
}

// Seed creates every account whose email is not taken yet and returns how
// many were created. Existing accounts are left untouched.
func (s *Seeder) Seed(ctx context.Context, accounts []Account) (int, error) {
	created := 0
	for _, a := range accounts {
		u, err := s.users.CreateUser(ctx, services.CreateUserInput{
			Email:    a.Email,
			Name:     a.Name,
			Password: a.Password,
			Role:     a.Role,
		})
		switch {
		case errors.Is(err, common.ErrorAlreadyExists):
			fmt.Fprintf(s.out, "User already exists: %s\n", common.NormalizeEmail(a.Email))
		case err != nil:
			return created, fmt.Errorf("seed %s: %w", a.Email, err)
		default:
			created++
			fmt.Fprintf(s.out, "Created %s user: %s\n", strings.ToLower(string(u.Role)), u.Email)
		}
	}
	return created, nil
}
