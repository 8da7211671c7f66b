package main

import "github.com/zfogg/sidechain/chat/internal/cmd"

func main() {
	cmd.Execute()
}
