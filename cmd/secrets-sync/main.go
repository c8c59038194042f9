package main

import "github.com/Josh5/secrets-sync/cmd/secrets-sync/cmd"

func main() {
	cmd.Execute()
}
