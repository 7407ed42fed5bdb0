package main

import (
	"log"
	"strings"
)

// consoleRunner stands in for the host console: it expands {placeholders} and logs the
// resulting command line.
type consoleRunner struct {
	log *log.Logger
}

func (c consoleRunner) Run(command string, vars map[string]string) {
	line := expand(command, vars)
	if strings.TrimSpace(line) == "" {
		return
	}
	c.log.Printf("%s", line)
}

func expand(command string, vars map[string]string) string {
	if len(vars) == 0 {
		return command
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(command)
}
