package app

import (
	"fmt"
	"strconv"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーとSSE配信を起動する。
	CommandServe Command = "serve"
	// CommandWorker はセッション掃除と通知中継を行うワーカーを起動する。
	CommandWorker Command = "worker"
	// CommandMigrate はマイグレーションを適用して終了する。
	// "migrate down [n]" で直近n件（既定1件）を戻す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のサーバーの /health を確認して終了する。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

var commands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand はコマンドライン引数の先頭からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := commands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}

// MigrateArgs はmigrateサブコマンドの引数。
type MigrateArgs struct {
	Down  bool
	Steps int
}

// ParseMigrateArgs は "migrate [up|down [n]]" を解析する。argsの先頭はサブコマンド名。
func ParseMigrateArgs(args []string) (MigrateArgs, error) {
	if len(args) > 0 && args[0] == string(CommandMigrate) {
		args = args[1:]
	}
	if len(args) == 0 || args[0] == "up" {
		if len(args) > 1 {
			return MigrateArgs{}, fmt.Errorf("unexpected arguments for migrate up: %q", args[1:])
		}
		return MigrateArgs{}, nil
	}
	if args[0] != "down" {
		return MigrateArgs{}, fmt.Errorf("unknown migrate direction: %q", args[0])
	}

	steps := 1
	switch len(args) {
	case 1:
	case 2:
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return MigrateArgs{}, fmt.Errorf("invalid migrate down steps: %q", args[1])
		}
		steps = n
	default:
		return MigrateArgs{}, fmt.Errorf("unexpected arguments for migrate down: %q", args[2:])
	}
	return MigrateArgs{Down: true, Steps: steps}, nil
}
