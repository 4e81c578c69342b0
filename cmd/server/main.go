package main

import "github.com/AnshRaj112/physiq-backend/internal/cli"

func main() {
	cli.Execute()
}
