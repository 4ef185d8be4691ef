// Command deckctl inspects and edits deck state offline: the calibration
// database, container definitions and layouts. The remote subcommands read a
// running deckd instead.
package main

func main() {
	Execute()
}
