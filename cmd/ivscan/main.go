package main

import "github.com/arloliu/go-ivscan/cmd/ivscan/cmd"

func main() {
	cmd.Execute()
}
