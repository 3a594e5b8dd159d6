// voxpipe is the media processing pipeline daemon and its operator CLI.
package main

import (
	"os"

	"github.com/voxpipe/voxpipe/cmd/voxpipe/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
