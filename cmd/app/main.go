package main

import "whisper-transcribe/internal/cli"

func main() {
	cli.Execute()
}
