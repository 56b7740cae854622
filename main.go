package main

import "github.com/ValentinKolb/pstore/cmd"

func main() {
	cmd.Execute()
}
