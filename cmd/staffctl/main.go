package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/infopublicnews25/BuyPvaAccount-sub000/guard"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/logging"
)

var (
	apiURL      string
	sessionPath string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:           "staffctl",
	Short:         "Staff session CLI for the BuyPvaAccount API",
	Long:          `Log in as a staff member, inspect the current identity and check page access the way the dashboard does.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var loginCmd = &cobra.Command{
	Use:   "login <username|email>",
	Short: "Log in and store the session token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, _ := cmd.Flags().GetString("code")
		password, err := readPassword(cmd)
		if err != nil {
			return err
		}
		c := guard.NewClient(apiURL, nil)
		res, err := c.Login(cmd.Context(), args[0], password, code)
		var le *guard.LoginError
		if errors.As(err, &le) && le.TwoFactorRequired && code == "" {
			return fmt.Errorf("%s; rerun with --code", le.Message)
		}
		if err != nil {
			return err
		}
		user := res.User
		if err := storage().Save(cmd.Context(), guard.Session{Token: res.Token, LoggedIn: true, User: &user}); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", user.Username, user.Role)
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the identity behind the stored token",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newGuard().Require(cmd.Context(), guard.Options{})
		if err != nil {
			return err
		}
		if d.State != guard.StateAuthorized {
			return report(cmd, d)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "username:    %s\n", d.User.Username)
		fmt.Fprintf(out, "email:       %s\n", d.User.Email)
		fmt.Fprintf(out, "role:        %s\n", d.User.Role)
		fmt.Fprintf(out, "permissions: %s\n", strings.Join(d.User.Permissions, ", "))
		vis := guard.Visibility(*d.User, guard.DashboardRegions)
		var shown []string
		for _, r := range guard.DashboardRegions {
			if vis[r.Name] {
				shown = append(shown, r.Name)
			}
		}
		fmt.Fprintf(out, "dashboard:   %s\n", strings.Join(shown, ", "))
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate page access requirements against the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		var opts guard.Options
		opts.AllowAnonymous, _ = f.GetBool("anonymous")
		opts.Role, _ = f.GetString("role")
		opts.DisallowRoles, _ = f.GetStringSlice("disallow-role")
		opts.AnyOfPermissions, _ = f.GetStringSlice("any-of")
		d, err := newGuard().Require(cmd.Context(), opts)
		if err != nil {
			return err
		}
		return report(cmd, d)
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the session server-side and clear it locally",
	RunE: func(cmd *cobra.Command, args []string) error {
		st := storage()
		sess, err := st.Load(cmd.Context())
		if err != nil {
			return err
		}
		if sess.Token != "" {
			if err := guard.NewClient(apiURL, nil).Logout(cmd.Context(), sess.Token); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}
		}
		if err := st.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
		return nil
	},
}

// errDenied makes check exit non-zero without printing twice.
var errDenied = errors.New("access not granted")

func report(cmd *cobra.Command, d guard.Decision) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "state: %s\n", d.State)
	if d.Message != "" {
		fmt.Fprintf(out, "message: %s\n", d.Message)
	}
	if d.Redirect != "" {
		fmt.Fprintf(out, "redirect: %s (after %s)\n", d.Redirect, d.RedirectAfter)
	}
	if !d.Proceed {
		return errDenied
	}
	return nil
}

func readPassword(cmd *cobra.Command) (string, error) {
	fromStdin, _ := cmd.Flags().GetBool("password-stdin")
	if fromStdin || !term.IsTerminal(int(os.Stdin.Fd())) {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}

func storage() *guard.FileStorage {
	return guard.NewFileStorage(sessionPath)
}

func newGuard() *guard.Guard {
	log := logging.Discard()
	if verbose {
		log = logging.New("")
	}
	return guard.New(guard.NewClient(apiURL, nil), storage(), guard.WithLogger(log))
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "staffctl", "session.json")
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "http://localhost:3000/api", "API base URL (env STAFFCTL_API)")
	rootCmd.PersistentFlags().StringVar(&sessionPath, "session", defaultSessionPath(), "session file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log guard transitions")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if v := os.Getenv("STAFFCTL_API"); v != "" && !cmd.Flags().Changed("api") {
			apiURL = v
		}
		return os.MkdirAll(filepath.Dir(sessionPath), 0o700)
	}

	loginCmd.Flags().String("code", "", "TOTP code when two-factor is enabled")
	loginCmd.Flags().Bool("password-stdin", false, "read the password from stdin")

	checkCmd.Flags().Bool("anonymous", false, "allow access without a session")
	checkCmd.Flags().String("role", "", "required role")
	checkCmd.Flags().StringSlice("disallow-role", nil, "roles that are refused")
	checkCmd.Flags().StringSlice("any-of", nil, "permissions of which at least one is required")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(logoutCmd)
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errDenied) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
