package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandWorker は常駐ワーカーモードで起動することを示す。
	// 一定間隔で通知ジョブを実行し、運用エンドポイントを公開する。
	CommandWorker Command = "worker"
	// CommandRun は通知ジョブを1回だけ実行して終了することを示す。
	// 外部のcronやタイマーから起動する場合に使用する。
	CommandRun Command = "run"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandWorkerを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandWorker
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "run":
		return CommandRun
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandWorker
	}
}
