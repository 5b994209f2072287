package main

import "github.com/YoshihikoAbe/wxmedia/wxmedia/cmd"

func main() {
	cmd.Execute()
}
