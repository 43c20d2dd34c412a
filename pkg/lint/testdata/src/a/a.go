package a

import (
	"os/exec" // want `os/exec imported outside the shell package - run commands through shell\.Executor`
)

type env struct{}

func (env) ParseEnv(s string) {}
func (env) Load(s string)     {}

var pipeline env

func bad() {
	_ = exec.Command("ls")
	pipeline.ParseEnv("") // want `ParseEnv called with empty string literal - always fails at runtime`
	pipeline.Load("")     // want `Load called with empty string literal - always fails at runtime`
}

func good() {
	pipeline.ParseEnv("TF_VERSION=tensorflow")
	pipeline.Load(".matrixci.yml")
}
