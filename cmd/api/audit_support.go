package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/josehenriquerds/celebra-mvp-sub003/internal/audit"
	"github.com/josehenriquerds/celebra-mvp-sub003/internal/config"
)

// setupAudit は監査ログのストアと Asynq ディスパッチャーを用意し、ワーカーを起動します。
func setupAudit(cfg *config.Config, rdb *redis.Client, logger *slog.Logger) (*audit.Dispatcher, error) {
	store := audit.NewStore(rdb, cfg.AuditTTL(), cfg.AuditRetention)
	dispatcher, err := audit.NewDispatcher(cfg.RedisURL, store, logger)
	if err != nil {
		return nil, err
	}
	if err := dispatcher.StartWorkers(); err != nil {
		dispatcher.Shutdown()
		return nil, err
	}
	return dispatcher, nil
}

type auditConfig struct {
	limit      int
	id         string
	jsonOutput bool
}

// newAuditCmd は直近の監査イベントを表示するサブコマンドを作成します。
func newAuditCmd() *cobra.Command {
	cfg := &auditConfig{}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "直近の監査イベントを表示します",
		Long: `ログイン失敗、CSRF 拒否、アクセス拒否などの監査イベントを新しい順に表示します。
--id を指定した場合はそのイベントだけを表示します。`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAudit(cmd, cfg)
		},
	}

	cmd.Flags().IntVarP(&cfg.limit, "limit", "n", 20, "表示する件数")
	cmd.Flags().StringVar(&cfg.id, "id", "", "表示するイベント ID")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "JSON で出力する")

	return cmd
}

func runAudit(cmd *cobra.Command, ac *auditConfig) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	rdb, err := newRedisClient(cmd.Context(), cfg.RedisURL)
	if err != nil {
		return err
	}
	defer rdb.Close()

	store := audit.NewStore(rdb, cfg.AuditTTL(), cfg.AuditRetention)
	events, err := loadAuditEvents(cmd.Context(), store, ac)
	if err != nil {
		return err
	}

	if ac.jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}
	fmt.Fprint(cmd.OutOrStdout(), formatAuditTable(events))
	return nil
}

func loadAuditEvents(ctx context.Context, store *audit.Store, ac *auditConfig) ([]audit.Event, error) {
	if ac.id == "" {
		return store.Recent(ctx, ac.limit)
	}
	ev, err := store.Get(ctx, ac.id)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, fmt.Errorf("audit event %q not found", ac.id)
	}
	return []audit.Event{*ev}, nil
}

func formatAuditTable(events []audit.Event) string {
	if len(events) == 0 {
		return "no audit events\n"
	}

	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tKIND\tUSER\tEVENT\tREASON\tIP\tPATH")
	for _, ev := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			ev.At.Local().Format(time.DateTime),
			ev.Kind,
			dash(ev.UserID),
			dash(ev.EventID),
			dash(ev.Reason),
			dash(ev.IP),
			dash(ev.Path),
		)
	}
	_ = w.Flush()
	return buf.String()
}

func dash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
