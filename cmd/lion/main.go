// Package main provides the Lion CLI entry point.
package main

func main() {
	Execute()
}
