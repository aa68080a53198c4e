package main

import "github.com/ValentinKolb/dCtl/cmd"

func main() {
	cmd.Execute()
}
