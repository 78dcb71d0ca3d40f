package main

import "github.com/pvpbtc/btcbattle/cmd"

func main() {
	cmd.Execute()
}
