// Command scorectl drives and inspects a running highscore service.
package main

func main() {
	Execute()
}
