// Command convmem runs conversational memory sessions from the terminal or
// over HTTP.
package main

import "github.com/youssefsiam38/convmem/internal/cli"

func main() {
	cli.Execute()
}
