// Command ngfctl inspects and edits ngf grammar stores.
package main

func main() {
	execute()
}
