package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/answergrid/internal/config"
	"github.com/nextlevelbuilder/answergrid/internal/queue"
)

func deadlettersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deadletters",
		Short: "Inspect and replay failed events",
	}
	cmd.AddCommand(deadlettersListCmd())
	cmd.AddCommand(deadlettersReplayCmd())
	return cmd
}

func deadlettersListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent dead letters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			stores, err := openStores(cfg)
			if err != nil {
				return err
			}
			defer stores.Close()

			recs, err := stores.DeadLetters.List(context.Background(), limit)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Println("no dead letters")
				return nil
			}
			for _, rec := range recs {
				replayed := ""
				if rec.ReplayedAt != nil {
					replayed = fmt.Sprintf("  replayed %s", rec.ReplayedAt.Format(time.RFC3339))
				}
				fmt.Printf("%s  %s  tenant=%s  %s  %s%s\n",
					rec.ID, rec.CreatedAt.Format(time.RFC3339), rec.TenantID,
					rec.EventType, firstLine(rec.ErrorMessage), replayed)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum records to show")
	return cmd
}

func deadlettersReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <id>",
		Short: "Re-enqueue a dead-lettered event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid dead letter id %q", args[0])
			}
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			stores, err := openStores(cfg)
			if err != nil {
				return err
			}
			defer stores.Close()

			ctx := context.Background()
			rec, err := stores.DeadLetters.Get(ctx, id)
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("dead letter %s not found", id)
			}
			if cfg.Redis.Addr == "" {
				return fmt.Errorf("replay requires the shared redis queue")
			}

			q, _, err := openQueueAndGuard(ctx, cfg)
			if err != nil {
				return err
			}
			defer q.Close()

			channelType, _, _ := strings.Cut(rec.EventType, ".")
			if channelType == "wa" {
				channelType = "whatsapp"
			}
			msgID, err := q.Publish(ctx, rec.Payload, map[string]string{
				queue.AttrChannelType: channelType,
				queue.AttrEventType:   rec.EventType,
				queue.AttrEventID:     "replay-" + rec.ID.String(),
			})
			if err != nil {
				return fmt.Errorf("re-enqueue: %w", err)
			}
			if err := stores.DeadLetters.MarkReplayed(ctx, id); err != nil {
				return fmt.Errorf("mark replayed: %w", err)
			}
			fmt.Printf("replayed %s as queue message %s\n", id, msgID)
			return nil
		},
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:120] + "…"
	}
	return s
}
