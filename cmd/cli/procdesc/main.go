package main

import (
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"
)

func main() {
	app := newApp(os.Stdout)

	parser := newParser(app)
	if _, err := parser.ParseArgs(os.Args[1:]); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			fmt.Println(flagsErr.Message)
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "procdesc: %v\n", err)
		app.close()
		os.Exit(1)
	}
	app.close()
}
