package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	_ "github.com/joho/godotenv/autoload"
)

const version = "1.0.0"

// @title       img2pdf API
// @version     1.0
// @description Batch image normalization and PDF assembly.
// @BasePath    /
func main() {
	root := newRootCmd()

	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, os.Kill),
	); err != nil {
		os.Exit(1)
	}
}
