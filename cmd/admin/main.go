// Command admin is the operator CLI for the chat core: it mints tokens, opens
// chat sessions on behalf of the invitation flow and inspects presence.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"skillswap/backend/internal/auth"
	"skillswap/backend/internal/config"
	"skillswap/backend/internal/models"
	"skillswap/backend/internal/presence"
	"skillswap/backend/internal/relay"
	"skillswap/backend/internal/storage"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const commandTimeout = 10 * time.Second

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfg *config.Config

	cmd := &cobra.Command{
		Use:           "admin",
		Short:         "Operator tools for the skillswap realtime core",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if loaded == nil {
				return err
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
			cfg = loaded
			return nil
		},
	}

	conf := func() *config.Config { return cfg }
	cmd.AddCommand(
		tokenCmd(conf),
		openChatCmd(conf),
		presenceCmd(conf),
		profileCmd(conf),
		relayTokenCmd(conf),
	)
	return cmd
}

func openStorage(cfg *config.Config) (*storage.Service, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return storage.NewStorageService(db, nil), nil
}

func tokenCmd(conf func() *config.Config) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <user_id>",
		Short: "Mint a bearer token for an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := conf()
			token, err := auth.NewService(cfg.JWTSecret, cfg.JWTIssuer, ttl).Issue(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTokenTTL, "token lifetime")
	return cmd
}

func openChatCmd(conf func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "open-chat <user_a> <user_b> <category> <skill_ref>",
		Short: "Open (or find) the chat session for two users",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStorage(conf())
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			session, created, err := s.CreateSession(ctx, args[0], args[1], args[2], args[3])
			if err != nil {
				return err
			}
			verb := "existing"
			if created {
				verb = "created"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s chat %s (%d messages)\n", verb, session.ID, session.MessageCount)
			return nil
		},
	}
}

func presenceCmd(conf func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "presence <user_id>",
		Short: "Show which node holds a user's live connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := conf()
			if cfg.RedisAddr == "" {
				return fmt.Errorf("REDIS_ADDR is not set; presence is only tracked per node")
			}
			rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
			defer rdb.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			node, ok, err := presence.NewDirectory(rdb, "admin", presence.DefaultEntryTTL, nil).Locate(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is offline\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is online on %s\n", args[0], node)
			return nil
		},
	}
}

func profileCmd(conf func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "profile <user_id> <display_name> [photo_url]",
		Short: "Set the display data shown on incoming calls",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStorage(conf())
			if err != nil {
				return err
			}
			p := &models.Profile{ID: args[0], DisplayName: args[1]}
			if len(args) == 3 {
				p.PhotoURL = args[2]
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			if err := s.SaveProfile(ctx, p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "profile %s saved\n", p.ID)
			return nil
		},
	}
}

func relayTokenCmd(conf func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "relay-token <token>",
		Short: "Decode and verify a media relay join token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := conf()
			claims, err := relay.NewIssuer(cfg.RelayAppID, cfg.RelayAppCert, cfg.RelayTokenTTL).Verify(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "channel=%s uid=%d expires=%s\n", claims.Channel, claims.UID, claims.ExpiresAt.Time.Format(time.RFC3339))
			return nil
		},
	}
}
