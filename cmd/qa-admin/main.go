package main

import (
	"github.com/joho/godotenv"
	"github.com/tendant/simple-qa/cmd/qa-admin/commands"
)

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	commands.Execute()
}
