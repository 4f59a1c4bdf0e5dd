package main

import "github.com/rafaelssenna/LUNA-PAINEL-BACK/internal/cli"

func main() {
	cli.Execute()
}
