// Command audiojournal turns voice memos into a linked Markdown journal.
package main

func main() {
	Execute()
}
