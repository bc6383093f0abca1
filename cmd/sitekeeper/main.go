package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"sitekeeper/internal/app"
	"sitekeeper/internal/config"
)

var configPath string

func main() {
	if err := rootCommand().Execute(); err != nil {
		log.Fatal(err)
	}
}

// rootCommand assembles the CLI surface over the session layer
func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "sitekeeper",
		Short:         "Manage authenticated site sessions for Moodle-compatible platforms",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("SITEKEEPER_CONFIG_FILE"), "path to JSON config file")

	root.AddCommand(
		checkCommand(),
		loginCommand(),
		ssoStartCommand(),
		ssoCallbackCommand(),
		sitesCommand(),
		currentCommand(),
		restoreCommand(),
		logoutCommand(),
		removeCommand(),
		callCommand(),
		fileCommand(),
	)
	return root
}

// withApp runs a command body against a fully wired application
// ARCHITECTURAL DISCOVERY: Configuration precedence (file > env > defaults)
// resolved once here so every subcommand sees identical wiring
func withApp(run func(ctx context.Context, application *app.Application) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfigWithPrecedence(configPath)
		application, err := app.NewApplication(cfg)
		if err != nil {
			return fmt.Errorf("failed to start application: %w", err)
		}
		defer func() {
			if err := application.Close(); err != nil {
				log.Printf("Shutdown error: %v", err)
			}
		}()

		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()
		return run(ctx, application)
	}
}

func checkCommand() *cobra.Command {
	var scheme string
	cmd := &cobra.Command{
		Use:   "check <site-url>",
		Short: "Validate a site URL and probe its authentication method",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().StringVar(&scheme, "scheme", "https", "scheme to assume when the URL carries none")
	cmd.RunE = func(c *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, application *app.Application) error {
			check, err := application.Sessions().CheckSite(ctx, args[0], scheme)
			if err != nil {
				return err
			}
			fmt.Printf("site: %s\nauth code: %d\n", check.SiteURL, check.AuthCode)
			return nil
		})(c, args)
	}
	return cmd
}

func loginCommand() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <site-url> <username>",
		Short: "Authenticate with credentials and register the site",
		Args:  cobra.ExactArgs(2),
	}
	cmd.Flags().StringVar(&password, "password", "", "account password (or set SITEKEEPER_PASSWORD)")
	cmd.RunE = func(c *cobra.Command, args []string) error {
		if password == "" {
			password = os.Getenv("SITEKEEPER_PASSWORD")
		}
		if password == "" {
			return fmt.Errorf("password required: use --password or SITEKEEPER_PASSWORD")
		}
		return withApp(func(ctx context.Context, application *app.Application) error {
			sessions := application.Sessions()

			check, err := sessions.CheckSite(ctx, args[0], "https")
			if err != nil {
				return err
			}

			token, err := sessions.GetUserToken(ctx, check.SiteURL, args[1], password)
			if err != nil {
				return err
			}

			record, err := sessions.NewSite(ctx, check.SiteURL, token)
			if err != nil {
				return err
			}

			fmt.Printf("logged in: %s as %s (site id %s)\n", record.SiteURL, record.Info.Username, record.ID)
			return nil
		})(c, args)
	}
	return cmd
}

func ssoStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sso-start <site-url>",
		Short: "Begin an SSO login and print the browser launch URL",
		Args:  cobra.ExactArgs(1),
		RunE: withAppArgs(func(ctx context.Context, application *app.Application, args []string) error {
			launchURL, err := application.Sessions().StartSSOLogin(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Println(launchURL)
			return nil
		}),
	}
}

func ssoCallbackCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sso-callback <payload>",
		Short: "Validate an SSO callback payload and register the site",
		Args:  cobra.ExactArgs(1),
		RunE: withAppArgs(func(ctx context.Context, application *app.Application, args []string) error {
			record, err := application.Sessions().ValidateSSOCallback(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("logged in: %s as %s (site id %s)\n", record.SiteURL, record.Info.Username, record.ID)
			return nil
		}),
	}
}

func sitesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "List stored site records",
		Args:  cobra.NoArgs,
		RunE: withAppArgs(func(ctx context.Context, application *app.Application, args []string) error {
			sites, err := application.Sessions().ListSites(ctx)
			if err != nil {
				return err
			}
			if len(sites) == 0 {
				fmt.Println("no sites registered")
				return nil
			}
			for _, site := range sites {
				fmt.Printf("%s  %s  %s\n", site.ID, site.SiteURL, site.Info.Username)
			}
			return nil
		}),
	}
}

func currentCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "Show the active site session",
		Args:  cobra.NoArgs,
		RunE: withAppArgs(func(ctx context.Context, application *app.Application, args []string) error {
			if _, err := application.Sessions().RestoreSession(ctx); err != nil {
				return err
			}
			current := application.Sessions().CurrentSite()
			fmt.Printf("%s  %s  %s\n", current.ID, current.SiteURL, current.Info.Username)
			return nil
		}),
	}
}

func restoreCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Restore the persisted session",
		Args:  cobra.NoArgs,
		RunE: withAppArgs(func(ctx context.Context, application *app.Application, args []string) error {
			record, err := application.Sessions().RestoreSession(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("restored: %s as %s\n", record.SiteURL, record.Info.Username)
			return nil
		}),
	}
}

func logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the active session (the site record survives)",
		Args:  cobra.NoArgs,
		RunE: withAppArgs(func(ctx context.Context, application *app.Application, args []string) error {
			return application.Sessions().Logout(ctx)
		}),
	}
}

func removeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <site-id>",
		Short: "Delete a site record and its cached files",
		Args:  cobra.ExactArgs(1),
		RunE: withAppArgs(func(ctx context.Context, application *app.Application, args []string) error {
			return application.Sessions().DeleteSite(ctx, args[0])
		}),
	}
}

func callCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "call <method> [json-args]",
		Short: "Run a web service function against the active site",
		Args:  cobra.RangeArgs(1, 2),
		RunE: withAppArgs(func(ctx context.Context, application *app.Application, args []string) error {
			callArgs := map[string]interface{}{}
			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &callArgs); err != nil {
					return fmt.Errorf("invalid JSON arguments: %w", err)
				}
			}

			if _, err := application.Sessions().RestoreSession(ctx); err != nil {
				return err
			}

			payload, err := application.Sessions().Call(ctx, args[0], callArgs)
			if err != nil {
				return err
			}

			pretty, err := json.MarshalIndent(payload, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(pretty))
			return nil
		}),
	}
}

func fileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "file <file-url> <course-id>",
		Short: "Resolve a remote file to its local cache path or remote URL",
		Args:  cobra.ExactArgs(2),
		RunE: withAppArgs(func(ctx context.Context, application *app.Application, args []string) error {
			if _, err := application.Sessions().RestoreSession(ctx); err != nil {
				return err
			}
			current := application.Sessions().CurrentSite()
			fmt.Println(application.Files().GetFilePath(ctx, args[0], args[1], current.ID))
			return nil
		}),
	}
}

// withAppArgs adapts withApp for commands that need their positional args
func withAppArgs(run func(ctx context.Context, application *app.Application, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, application *app.Application) error {
			return run(ctx, application, args)
		})(cmd, args)
	}
}
