// Command titan はコミュニティサイトのバックエンドを起動する。
//
// 使い方:
//
//	titan [serve]         APIサーバーを起動する
//	titan worker          期限切れセッションを定期削除する
//	titan migrate         データベースマイグレーションを適用する
//	titan admin <email>   ユーザーに管理者フラグを付与する
//	titan badge           Discordバッジをポーリングして標準出力に描画する
//	titan healthcheck     ローカルの/healthを確認する
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/titan/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "titan: %v\n", err)
		os.Exit(1)
	}
}
