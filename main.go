/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "chatwire/cmd"

func main() {
	cmd.Execute()
}
