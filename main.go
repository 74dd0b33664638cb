package main

import (
	"os"

	"github.com/YDUTSEVOLDN/Subway/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
