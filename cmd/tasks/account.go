package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/steveyegge/tasksync/internal/auth"
	"github.com/steveyegge/tasksync/internal/types"
	"github.com/steveyegge/tasksync/internal/ui"
	"golang.org/x/term"
)

func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// credentials returns the --email and --password flags, prompting for
// whatever is missing when stdin is a terminal.
func credentials(cmd *cobra.Command, confirm bool) (email, password string, err error) {
	email, _ = cmd.Flags().GetString("email")
	password, _ = cmd.Flags().GetString("password")
	if email != "" && password != "" {
		return email, password, nil
	}
	if !isInteractive() {
		return "", "", fmt.Errorf("--email and --password are required when not running in a terminal")
	}

	var again string
	fields := []huh.Field{
		huh.NewInput().
			Title("Email").
			Value(&email),
		huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(&password),
	}
	if confirm {
		fields = append(fields, huh.NewInput().
			Title("Confirm password").
			EchoMode(huh.EchoModePassword).
			Value(&again).
			Validate(func(s string) error {
				if s != password {
					return errors.New("passwords do not match")
				}
				return nil
			}))
	}

	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return "", "", err
	}
	return email, password, nil
}

// runSession signs in or up, then lets the store pick up the new identity
// and report the synced collection.
func runSession(cmd *cobra.Command, signUp bool) {
	email, password, err := credentials(cmd, signUp)
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			os.Exit(1)
		}
		fatalf("%v", err)
	}

	ctx := cmd.Context()
	a := mustApp(ctx)
	defer a.Close()

	var id *types.Identity
	if signUp {
		id, err = a.auth.SignUp(ctx, email, password)
	} else {
		id, err = a.auth.SignIn(ctx, email, password)
	}
	if err != nil {
		a.Close()
		fatalf("%v", err)
	}

	// The identity change starts a background sync; wait for it.
	if err := a.store.Sync(ctx); err != nil {
		a.Close()
		fatalf("%v", err)
	}
	st := a.store.Snapshot()

	verb := "Signed in"
	if signUp {
		verb = "Account created, signed in"
	}
	fmt.Printf("%s %s as %s\n", ui.RenderPass("✓"), verb, ui.RenderBold(id.Email))
	if st.Error != "" {
		fmt.Printf("%s %s\n", ui.RenderWarn("⚠"), st.Error)
		return
	}
	fmt.Printf("  %d task(s)\n", len(st.Tasks))
}

var signupCmd = &cobra.Command{
	Use:     "signup",
	GroupID: "account",
	Short:   "Create an account and sign in",
	Run: func(cmd *cobra.Command, args []string) {
		runSession(cmd, true)
	},
}

var signinCmd = &cobra.Command{
	Use:     "signin",
	Aliases: []string{"login"},
	GroupID: "account",
	Short:   "Sign in to an existing account",
	Run: func(cmd *cobra.Command, args []string) {
		runSession(cmd, false)
	},
}

var signoutCmd = &cobra.Command{
	Use:     "signout",
	Aliases: []string{"logout"},
	GroupID: "account",
	Short:   "Sign out and forget the session",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openAuth(cmd.Context())
		if err != nil {
			fatalf("%v", err)
		}
		defer a.Close()

		if a.auth.Current() == nil {
			fmt.Println("Not signed in")
			return
		}
		if err := a.auth.SignOut(cmd.Context()); err != nil {
			a.Close()
			fatalf("%v", err)
		}
		fmt.Printf("%s Signed out\n", ui.RenderPass("✓"))
	},
}

var whoamiCmd = &cobra.Command{
	Use:     "whoami",
	GroupID: "account",
	Short:   "Show the signed-in account",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := openAuth(cmd.Context())
		if err != nil {
			fatalf("%v", err)
		}
		defer a.Close()

		id := a.auth.Current()
		if id == nil {
			fmt.Println("Not signed in")
			return
		}

		fmt.Printf("%s\n", ui.RenderBold(id.Email))
		fmt.Printf("  User ID: %s\n", id.UserID)
		fmt.Printf("  Session: %s\n", sessionStatus(cmd.Context(), a.auth, id))
	},
}

func sessionStatus(ctx context.Context, gw auth.Gateway, id *types.Identity) string {
	if err := gw.VerifyFresh(ctx); err != nil {
		return ui.RenderFail("expired, sign in again")
	}
	if cur := gw.Current(); cur != nil {
		id = cur
	}
	return fmt.Sprintf("valid until %s", id.ExpiresAt.Local().Format(time.DateTime))
}

func init() {
	for _, c := range []*cobra.Command{signupCmd, signinCmd} {
		c.Flags().String("email", "", "Account email")
		c.Flags().String("password", "", "Account password (prompted when omitted)")
	}
	rootCmd.AddCommand(signupCmd, signinCmd, signoutCmd, whoamiCmd)
}
