package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"

	ckafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"friendfeed/internal/config"
	appKafka "friendfeed/internal/kafka"
	"friendfeed/internal/models"
	"friendfeed/internal/services"
	"friendfeed/internal/storage"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath string
	Format     string // "text" | "json"
}

// opener loads the configuration and opens the database for a command.
type opener func(configPath string) (config.Config, *gorm.DB, error)

func openFromConfig(configPath string) (config.Config, *gorm.DB, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return cfg, nil, fmt.Errorf("加载配置失败: %w", err)
	}
	db, err := storage.InitDB(cfg.Database)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, db, nil
}

func newRootCommand(open opener) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "friendfeed-admin",
		Short: "Inspect friendships, feeds and activity events",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Format != "text" && opts.Format != "json" {
				return fmt.Errorf("invalid format %q: must be text or json", opts.Format)
			}
			return nil
		},
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newFriendsCommand(opts, open))
	cmd.AddCommand(newFeedCommand(opts, open))
	cmd.AddCommand(newEventsCommand(opts))
	return cmd
}

// readServices wires the read-side services over db. Nothing is published from here.
func readServices(cfg config.Config, db *gorm.DB) (services.FriendshipService, services.FeedService, error) {
	blobs, err := storage.NewLocalBlobStore(cfg.Storage)
	if err != nil {
		return nil, nil, err
	}
	userService := services.NewUserService(storage.NewGormUserRepository(db), blobs, cfg.Policy)
	friendshipRepo := storage.NewGormFriendshipRepository(db)
	friendships := services.NewFriendshipService(db, friendshipRepo, userService, nil, cfg.Policy)
	feed := services.NewFeedService(friendshipRepo, storage.NewGormPostRepository(db), storage.NewGormCommentRepository(db), userService, blobs, cfg.Policy)
	return friendships, feed, nil
}

func parseUserID(arg string) (uint, error) {
	id, err := storage.StrToUint(arg)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid user id %q", arg)
	}
	return id, nil
}

func newFriendsCommand(opts *rootOptions, open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "friends <userID>",
		Short: "List a user's friends and pending requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			cfg, db, err := open(opts.ConfigPath)
			if err != nil {
				return err
			}
			friendships, _, err := readServices(cfg, db)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			friends, err := friendships.ListFriends(ctx, userID)
			if err != nil {
				return err
			}
			incoming, err := friendships.ListIncomingRequests(ctx, userID)
			if err != nil {
				return err
			}
			sent, err := friendships.ListSentRequests(ctx, userID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeJSON(out, map[string]interface{}{"friends": friends, "incoming": incoming, "sent": sent})
			}

			fmt.Fprintf(out, "用户 %d: %d 个好友, %d 个待处理请求, %d 个已发送请求\n", userID, len(friends), len(incoming), len(sent))
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tUSER\tSINCE")
			writeRows(tw, "friend", friends)
			writeRows(tw, "incoming", incoming)
			writeRows(tw, "sent", sent)
			return tw.Flush()
		},
	}
}

func writeRows(w io.Writer, kind string, views []*models.FriendshipView) {
	for _, v := range views {
		name := "?"
		if v.Other != nil {
			name = v.Other.Username
		}
		since := v.CreatedAt
		if v.AcceptedAt != nil {
			since = *v.AcceptedAt
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", v.ID, kind, name, since.Format("2006-01-02 15:04"))
	}
}

func newFeedCommand(opts *rootOptions, open opener) *cobra.Command {
	var (
		cursor   string
		pageSize int
	)
	cmd := &cobra.Command{
		Use:   "feed <userID>",
		Short: "Print one page of a user's feed as they would see it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			cfg, db, err := open(opts.ConfigPath)
			if err != nil {
				return err
			}
			_, feed, err := readServices(cfg, db)
			if err != nil {
				return err
			}

			page, err := feed.GetFeed(cmd.Context(), userID, cursor, pageSize)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeJSON(out, page)
			}
			for _, p := range page.Posts {
				owner := "?"
				if p.Owner != nil {
					owner = p.Owner.Username
				}
				fmt.Fprintf(out, "#%d  %s  @%s  %q  (%d comments)\n", p.ID, p.CreatedAt.Format("2006-01-02 15:04:05"), owner, p.Caption, len(p.Comments))
			}
			if page.HasMore {
				fmt.Fprintf(out, "next cursor: %s\n", page.NextCursor)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cursor, "cursor", "", "cursor from a previous page")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "page size (default from config)")
	return cmd
}

func newEventsCommand(opts *rootOptions) *cobra.Command {
	events := &cobra.Command{
		Use:   "events",
		Short: "Activity event tools",
	}

	var fromBeginning bool
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Follow the activity topic and print each event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(opts.ConfigPath)
			if err != nil {
				return fmt.Errorf("加载配置失败: %w", err)
			}
			offsetReset := "latest"
			if fromBeginning {
				offsetReset = "earliest"
			}
			consumer, err := appKafka.NewConfluentKafkaConsumer(cfg.Kafka, offsetReset)
			if err != nil {
				return err
			}
			defer consumer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			return consumer.Consume(ctx, []string{cfg.Kafka.ActivityTopic}, cfg.Kafka.ConsumerGroup, func(_ context.Context, msg *ckafka.Message) error {
				return printEvent(out, opts.Format, msg.Value)
			})
		},
	}
	tail.Flags().BoolVar(&fromBeginning, "from-beginning", false, "start from the earliest retained event")

	events.AddCommand(tail)
	return events
}

// printEvent writes one activity event. Undecodable payloads are reported and skipped.
func printEvent(w io.Writer, format string, payload []byte) error {
	event, err := appKafka.DecodeActivityEvent(payload)
	if err != nil {
		fmt.Fprintf(w, "skipping message: %v\n", err)
		return nil
	}
	if format == "json" {
		return writeJSON(w, event)
	}
	fmt.Fprintf(w, "%s  %-20s actor=%d", event.OccurredAt.Format("2006-01-02T15:04:05Z07:00"), event.Type, event.ActorID)
	if event.SubjectID != 0 {
		fmt.Fprintf(w, " subject=%d", event.SubjectID)
	}
	fmt.Fprintf(w, " object=%d\n", event.ObjectID)
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
