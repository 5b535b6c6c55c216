// dagfactory — сборка графов workflow из декларативного YAML.
//
// Использование:
//
//	dagfactory [--config FILE] [--json] [--skip-invalid] <command> [flags]
//
// Команды:
//
//	validate  Проверить документ
//	list      Список workflow и ближайший запуск
//	show      Детали workflow
//	run       Локальный запуск workflow
//	register  Регистрация снимков в PostgreSQL
//	serve     HTTP API с периодической пересборкой
//	watch     События регистрации из RabbitMQ
package main

import (
	"fmt"
	"os"

	"github.com/shaiso/dagfactory/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	if err := cli.NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
