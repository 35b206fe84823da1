package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	apiclient "github.com/andrianfaa/Studi-Bareng/pkg/api/client"
)

const requestTimeout = 15 * time.Second

var buildVersion = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var apiBase string
	cmd := &cobra.Command{
		Use:           "studi",
		Short:         "Command line client for the Studi Bareng API",
		Version:       buildVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&apiBase, "api", "", "API base URL (default from config or "+apiclient.DefaultBaseURL+")")

	cmd.AddCommand(newSignupCommand(&apiBase))
	cmd.AddCommand(newSigninCommand(&apiBase))
	cmd.AddCommand(newWhoamiCommand(&apiBase))
	cmd.AddCommand(newPasswdCommand(&apiBase))
	cmd.AddCommand(newPostsCommand(&apiBase))
	cmd.AddCommand(newLogoutCommand())
	return cmd
}

func newSignupCommand(apiBase *string) *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and store its token",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := promptPassword(cmd.ErrOrStderr(), password)
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), *apiBase, func(ctx context.Context, cfg cliConfig, client *apiclient.Client) error {
				token, err := client.SignUp(ctx, name, email, secret)
				if err != nil {
					return err
				}
				cfg.Token = token
				if err := saveConfig(cfg); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "signed up as", email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (supply to avoid prompt)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newSigninCommand(apiBase *string) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in and store the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := promptPassword(cmd.ErrOrStderr(), password)
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), *apiBase, func(ctx context.Context, cfg cliConfig, client *apiclient.Client) error {
				token, err := client.SignIn(ctx, email, secret)
				if err != nil {
					return err
				}
				cfg.Token = token
				if err := saveConfig(cfg); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "signin successful")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (supply to avoid prompt)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newWhoamiCommand(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), *apiBase, func(ctx context.Context, token string, client *apiclient.Client) error {
				profile, err := client.Profile(ctx, token)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s <%s>\n", profile.Name, profile.Email)
				return nil
			})
		},
	}
}

func newPasswdCommand(apiBase *string) *cobra.Command {
	var current, next string
	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Change your password; earlier tokens stop working",
		RunE: func(cmd *cobra.Command, args []string) error {
			oldSecret, err := promptSecret(cmd.ErrOrStderr(), "Current password: ", current)
			if err != nil {
				return err
			}
			newSecret, err := promptSecret(cmd.ErrOrStderr(), "New password: ", next)
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), *apiBase, func(ctx context.Context, cfg cliConfig, client *apiclient.Client) error {
				if strings.TrimSpace(cfg.Token) == "" {
					return errors.New("please sign in first using 'studi signin'")
				}
				token, err := client.ChangePassword(ctx, cfg.Token, oldSecret, newSecret)
				if err != nil {
					return err
				}
				cfg.Token = token
				if err := saveConfig(cfg); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "password changed")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&current, "current", "", "Current password (supply to avoid prompt)")
	cmd.Flags().StringVar(&next, "new", "", "New password (supply to avoid prompt)")
	return cmd
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Token = ""
			return saveConfig(cfg)
		},
	}
}

// withClient loads the CLI config, applies the --api override and runs fn
// with a bounded context.
func withClient(parent context.Context, apiBase string, fn func(context.Context, cliConfig, *apiclient.Client) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if base := strings.TrimSpace(apiBase); base != "" {
		cfg.APIBaseURL = base
	}
	client, err := apiclient.New(cfg.APIBaseURL)
	if err != nil {
		return err
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, requestTimeout)
	defer cancel()
	return fn(ctx, cfg, client)
}

// withSession is withClient for commands that need a stored token.
func withSession(parent context.Context, apiBase string, fn func(context.Context, string, *apiclient.Client) error) error {
	return withClient(parent, apiBase, func(ctx context.Context, cfg cliConfig, client *apiclient.Client) error {
		token := strings.TrimSpace(cfg.Token)
		if token == "" {
			return errors.New("please sign in first using 'studi signin'")
		}
		err := fn(ctx, token, client)
		if apiclient.IsUnauthorized(err) {
			return fmt.Errorf("%w (sign in again with 'studi signin')", err)
		}
		return err
	})
}

func promptPassword(out io.Writer, provided string) (string, error) {
	return promptSecret(out, "Password: ", provided)
}

func promptSecret(out io.Writer, label, provided string) (string, error) {
	if provided != "" {
		return provided, nil
	}
	fmt.Fprint(out, label)
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(secret), nil
}
