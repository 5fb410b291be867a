package main

import "github.com/nomasters/sockread/cmd"

func main() {
	cmd.Execute()
}
