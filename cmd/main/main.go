// Package main provides the entry point for the forum crawler CLI.
//
// Usage:
//
//	forum-crawler --config config.yaml
package main

func main() {
	Execute()
}
