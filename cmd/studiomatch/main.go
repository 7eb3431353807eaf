// Command studiomatch はスタジオ仲間探しのAPIサーバーとワーカーを起動する。
//
// 使い方:
//
//	studiomatch [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/studiomatch/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "studiomatch: %v\n", err)
		os.Exit(1)
	}
}
