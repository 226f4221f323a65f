package main

import (
	"os"

	"github.com/go-backoffice/backoffice/app"
)

func main() {
	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}
