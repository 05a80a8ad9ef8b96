package main

import "walletbot/cmd"

func main() {
	cmd.Execute()
}
