package main

import "github.com/oshokin/tsundere-client/cmd/tsundere-users/cmd"

func main() {
	cmd.Execute()
}
