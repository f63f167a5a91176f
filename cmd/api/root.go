package main

import (
	"github.com/spf13/cobra"
)

// newRootCmd は celebra コマンドのルートを作成します。
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "celebra",
		Short: "celebra 認証 API サーバーと管理ツール",
		Long: `celebra はイベント管理アプリの認証・認可 API です。
serve でサーバーを起動し、create-user や hash-password で認証情報を管理します。`,
		SilenceUsage: true,
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newHashPasswordCmd())
	cmd.AddCommand(newCreateUserCmd())
	cmd.AddCommand(newAuditCmd())

	return cmd
}
