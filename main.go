package main

import "github.com/kozaktomas/face-centroids/cmd"

func main() {
	cmd.Execute()
}
