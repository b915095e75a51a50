package main

import "github.com/andresmejia3/rotisserie/cmd"

func main() {
	cmd.Execute()
}
