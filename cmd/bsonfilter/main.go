package main

import "github.com/inngest/bsonfilter/cmd/bsonfilter/cmd"

func main() {
	cmd.Execute()
}
