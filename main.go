package main

import "github.com/shouni/go-listing-watch/cmd"

func main() {
	cmd.Execute()
}
