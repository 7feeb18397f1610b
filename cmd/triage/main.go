package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		code := 1
		var exitErr *ExitCodeError
		if errors.As(err, &exitErr) && exitErr.Code > 0 {
			code = exitErr.Code
		}
		fmt.Fprintln(os.Stderr, red("Error: ")+err.Error())
		os.Exit(code)
	}
}
