package main

import (
	"github.com/Raimguhinov/ring-go/internal/app"
	"github.com/Raimguhinov/ring-go/internal/config"
)

func main() {
	cfg := config.GetConfig()

	app.Run(cfg)
}
