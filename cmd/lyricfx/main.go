package main

import (
	"lyricfx/internal/app"
	"lyricfx/internal/config"
)

func main() {
	cfg := config.Load()
	app := app.New(cfg)
	app.Run()
}
