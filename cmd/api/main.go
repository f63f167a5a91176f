// Package main は celebra 認証 API サーバーと管理用 CLI のエントリーポイントです。
package main

import (
	"os"
)

// ビルド時に上書きされます。
var version = "0.1.0"

func main() {
	cmd := newRootCmd()
	cmd.Version = version

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
