package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/research-hours/internal/config"
	"github.com/Tiliavir/research-hours/internal/firebase"
)

var loginEmail string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to Firebase with email and password",
	Long: `Sign in to Firebase with email and password. The password is read from
HOURS_PASSWORD or prompted for on stdin. The session is saved in
~/.hours/auth/ and refreshed automatically.`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the saved Firebase session",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email")
	_ = loginCmd.MarkFlagRequired("email")
}

func firebaseAuth() (*firebase.Auth, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Store.Driver != config.DriverFirebase {
		return nil, exitWith(1, fmt.Errorf("store driver is %q; login needs store.driver: firebase", cfg.Store.Driver))
	}
	return newAuth(cfg, log)
}

func runLogin(cmd *cobra.Command, args []string) error {
	auth, err := firebaseAuth()
	if err != nil {
		return err
	}

	password := os.Getenv("HOURS_PASSWORD")
	if password == "" {
		fmt.Fprint(os.Stderr, "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return exitWith(1, fmt.Errorf("reading password: %w", err))
		}
		password = strings.TrimRight(line, "\r\n")
	}

	ident, err := auth.SignIn(context.Background(), loginEmail, password)
	if errors.Is(err, firebase.ErrInvalidCredentials) {
		return exitWith(1, errors.New("sign-in failed: wrong email or password"))
	}
	if err != nil {
		return exitWith(2, err)
	}
	fmt.Printf("Signed in as %s (%s)\n", ident.Email, ident.UID)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	auth, err := firebaseAuth()
	if err != nil {
		return err
	}
	if err := auth.SignOut(); err != nil {
		return exitWith(2, err)
	}
	fmt.Println("Signed out.")
	return nil
}
