package main

import (
	stepcmd "github.com/initializ/stepforge/cmd"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	stepcmd.SetVersionInfo(version, commit)
	stepcmd.Execute()
}
