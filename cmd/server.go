package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"

	"area/api/discordbot"
	"area/api/dispatch"
	"area/api/handlers"
	"area/database"
	"area/scheduler"
	"area/server"

	"github.com/urfave/cli/v3"
	"gorm.io/gorm"
)

func ServerCli() *cli.Command {
	cmd := &cli.Command{
		Name:  "area",
		Usage: "run the automation dispatch server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Sources: cli.EnvVars("DB_BACKEND"),
				Name:    "db-backend",
				Aliases: []string{"db"},
				Value:   "sqlite",
				Usage:   "database driver to use (sqlite or postgres)",
			},
			&cli.StringFlag{
				Sources: cli.EnvVars("DB_DSN"),
				Name:    "db-dsn",
				Value:   "data.db",
				Usage:   "sqlite path or postgres DSN",
			},
			&cli.BoolFlag{
				Sources: cli.EnvVars("DEBUG"),
				Name:    "debug",
				Aliases: []string{"d"},
				Value:   false,
				Usage:   "enable debug mode",
			},
			&cli.StringFlag{
				Sources: cli.EnvVars("HOST"),
				Name:    "host",
				Aliases: []string{"b"},
				Value:   "127.0.0.1",
				Usage:   "server bind address",
			},
			&cli.IntFlag{
				Sources: cli.EnvVars("PORT"),
				Name:    "port",
				Aliases: []string{"p"},
				Value:   8080,
				Usage:   "server port",
			},
			&cli.BoolFlag{
				Sources: cli.EnvVars("SSL"),
				Name:    "ssl",
				Aliases: []string{"s"},
				Value:   false,
				Usage:   "enable ssl",
			},
			&cli.StringFlag{
				Sources: cli.EnvVars("PUBLIC_BASE_URL"),
				Name:    "public-base-url",
				Value:   "http://localhost:8080",
				Usage:   "externally reachable base URL push notifications are delivered to",
			},
			&cli.StringFlag{
				Sources: cli.EnvVars("GMAIL_PUBSUB_TOPIC"),
				Name:    "gmail-pubsub-topic",
				Usage:   "Cloud Pub/Sub topic for Gmail watch notifications",
			},
			&cli.StringFlag{
				Sources: cli.EnvVars("DISCORD_BOT_TOKEN"),
				Name:    "discord-bot-token",
				Usage:   "bot token; the gateway listener starts when set",
			},
			&cli.StringFlag{
				Sources: cli.EnvVars("GITHUB_WEBHOOK_SECRET"),
				Name:    "github-webhook-secret",
				Usage:   "HMAC secret for GitHub webhook deliveries",
			},
			&cli.StringFlag{
				Sources: cli.EnvVars("GOOGLE_CLIENT_ID"),
				Name:    "google-client-id",
				Usage:   "OAuth client id shared by the Google services",
			},
			&cli.StringFlag{
				Sources: cli.EnvVars("GOOGLE_CLIENT_SECRET"),
				Name:    "google-client-secret",
				Usage:   "OAuth client secret shared by the Google services",
			},
			&cli.StringFlag{
				Sources: cli.EnvVars("GITHUB_CLIENT_ID"),
				Name:    "github-client-id",
				Usage:   "GitHub OAuth client id",
			},
			&cli.StringFlag{
				Sources: cli.EnvVars("GITHUB_CLIENT_SECRET"),
				Name:    "github-client-secret",
				Usage:   "GitHub OAuth client secret",
			},
			&cli.StringFlag{
				Sources: cli.EnvVars("DISCORD_CLIENT_ID"),
				Name:    "discord-client-id",
				Usage:   "Discord OAuth client id",
			},
			&cli.StringFlag{
				Sources: cli.EnvVars("DISCORD_CLIENT_SECRET"),
				Name:    "discord-client-secret",
				Usage:   "Discord OAuth client secret",
			},
			&cli.StringFlag{
				Sources: cli.EnvVars("ROOT_USER_EMAIL"),
				Name:    "root-user-email",
				Value:   "admin@localhost.local",
				Usage:   "email of the bootstrap user",
			},
		},
		Action: func(_ context.Context, c *cli.Command) error {
			database.DB = database.SetupDatabase(c.String("db-backend"), c.String("db-dsn"), c.Bool("debug"))

			registry := handlers.DefaultRegistry(handlers.Config{
				PublicBaseURL:    c.String("public-base-url"),
				GmailPubSubTopic: c.String("gmail-pubsub-topic"),
				DiscordBotToken:  c.String("discord-bot-token"),
			})

			if err := database.SeedServiceInfo(database.DB, registry.ServiceInfoSeeds()); err != nil {
				return fmt.Errorf("failed to seed service catalogue: %w", err)
			}

			orchestrator := dispatch.NewOrchestrator(database.DB, registry, dispatch.OAuthConfigs(dispatch.OAuthClientConfig{
				GoogleClientID:      c.String("google-client-id"),
				GoogleClientSecret:  c.String("google-client-secret"),
				GithubClientID:      c.String("github-client-id"),
				GithubClientSecret:  c.String("github-client-secret"),
				DiscordClientID:     c.String("discord-client-id"),
				DiscordClientSecret: c.String("discord-client-secret"),
			}))

			if _, err := ensureRootUser(database.DB, c.String("root-user-email")); err != nil {
				return err
			}

			schedulerService := scheduler.NewSchedulerService(database.DB, orchestrator)
			schedulerService.RegisterTasks()
			schedulerService.InitializeAreaTasks(registry.PolledActions())
			schedulerService.Start()
			defer schedulerService.Stop()

			if token := c.String("discord-bot-token"); token != "" {
				bot := discordbot.NewBot(token, orchestrator)
				bot.Start()
				defer bot.Stop()
			} else {
				log.Println("No Discord bot token configured, gateway listener disabled")
			}

			s, fullHost := server.BackendServer(
				database.DB,
				registry,
				orchestrator,
				schedulerService,
				c.String("github-webhook-secret"),
				c.String("host"),
				c.Int("port"),
				c.Bool("ssl"),
			)
			server.ServerStatus = "running"
			fmt.Printf("Starting server on %s\n", fullHost)

			return s.ListenAndServe()
		},
	}

	return cmd
}

// ensureRootUser creates the bootstrap user on first run and logs its API
// token so the instance is usable without the external identity layer.
func ensureRootUser(DB *gorm.DB, email string) (*database.User, error) {
	var user database.User
	q := DB.First(&user, "email = ?", email)
	if q.Error == nil {
		return &user, nil
	}
	if !errors.Is(q.Error, gorm.ErrRecordNotFound) {
		return nil, q.Error
	}

	created, err := database.RegisterUser(DB, "root", email)
	if err != nil {
		return nil, err
	}
	log.Printf("Created root user %s with API token %s", created.Email, created.ApiToken)
	return created, nil
}
