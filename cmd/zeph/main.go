// Command zeph runs the agent against one of its transports: the
// interactive terminal, a chat platform, or the A2A server.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/osamaelmahalawi/zeph/internal/channels"
	"github.com/osamaelmahalawi/zeph/internal/config"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "zeph",
		Short: "Zeph is a tool-using AI agent for the terminal and chat platforms",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithChannel(cmd, configPath, func(*config.Config) (channels.Channel, error) {
				return channels.NewTerminal(), nil
			})
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to zeph.yaml")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Expose the agent as an A2A JSON-RPC endpoint",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd, configPath)
			},
		},
		channelCommand(&configPath, "telegram", "Run the agent as a Telegram bot",
			func(cfg *config.Config, vault config.VaultProvider) (channels.Channel, error) {
				token, err := config.ResolveSecret(vault, cfg.Channels.TelegramToken)
				if err != nil {
					return nil, err
				}
				return channels.NewTelegram(token)
			}),
		channelCommand(&configPath, "slack", "Run the agent as a Slack app",
			func(cfg *config.Config, vault config.VaultProvider) (channels.Channel, error) {
				bot, err := config.ResolveSecret(vault, cfg.Channels.SlackBotToken)
				if err != nil {
					return nil, err
				}
				app, err := config.ResolveSecret(vault, cfg.Channels.SlackAppToken)
				if err != nil {
					return nil, err
				}
				return channels.NewSlack(bot, app)
			}),
		channelCommand(&configPath, "discord", "Run the agent as a Discord bot",
			func(cfg *config.Config, vault config.VaultProvider) (channels.Channel, error) {
				token, err := config.ResolveSecret(vault, cfg.Channels.DiscordToken)
				if err != nil {
					return nil, err
				}
				return channels.NewDiscord(token)
			}),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func channelCommand(configPath *string, name, short string,
	build func(*config.Config, config.VaultProvider) (channels.Channel, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			vault, err := config.NewEnvVault(".env")
			if err != nil {
				return err
			}
			return runWithChannel(cmd, *configPath, func(cfg *config.Config) (channels.Channel, error) {
				return build(cfg, vault)
			})
		},
	}
}

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}
