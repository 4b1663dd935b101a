package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/iliyamo/moderation-escalation/internal/config"
	"github.com/iliyamo/moderation-escalation/internal/database"
	"github.com/iliyamo/moderation-escalation/internal/repository"
	"github.com/iliyamo/moderation-escalation/internal/service"
	"github.com/iliyamo/moderation-escalation/internal/utils"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, dialect, err := database.Connect(cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := database.Migrate(cmd.Context(), db, dialect); err != nil {
				return err
			}
			log.Info().Str("driver", string(dialect)).Msg("schema up to date")
			return nil
		},
	}
}

func tokenCommand() *cobra.Command {
	var (
		userID uint64
		role   string
		ttl    int
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token",
		Long:  "Mint an access token signed with JWT_SECRET.  SYSTEM tokens authorize the classifier ingestion endpoint.",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := utils.NormalizeRole(role)
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if ttl == 0 {
				ttl = cfg.AccessTTLMin
			}
			tok, err := utils.NewAccessToken(cfg.JWTSecret, userID, r, ttl)
			if err != nil {
				return err
			}
			log.Debug().Uint64("user_id", userID).Str("role", r).Time("expires", tok.Exp).Msg("token minted")
			fmt.Fprintln(cmd.OutOrStdout(), tok.Token)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&userID, "user", 0, "subject user ID")
	cmd.Flags().StringVar(&role, "role", "SYSTEM", "role claim: USER, ADMIN or SYSTEM")
	cmd.Flags().IntVar(&ttl, "ttl", 0, "lifetime in minutes (default ACCESS_TOKEN_TTL_MIN)")
	return cmd
}

func maintenanceCommand() *cobra.Command {
	var (
		start, end string
		message    string
	)
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Announce a maintenance window once",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := time.Parse(time.RFC3339, start)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			to, err := time.Parse(time.RFC3339, end)
			if err != nil {
				return fmt.Errorf("--end: %w", err)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, _, err := database.Connect(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			tracker := service.NewAckTracker(repository.NewNotificationRepo(db),
				service.NewQueuePublisher(cfg.RabbitMQURL, cfg.NotificationQueue))
			sent, err := tracker.NotifyMaintenance(cmd.Context(), from, to, message)
			if err != nil {
				return err
			}
			key := service.MaintenanceEventKey(from, to)
			if !sent {
				log.Info().Str("event_key", key).Msg("window already announced")
				return nil
			}
			log.Info().Str("event_key", key).Msg("maintenance notice sent")
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "window start (RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "window end (RFC3339)")
	cmd.Flags().StringVar(&message, "message", "", "notice text")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}
