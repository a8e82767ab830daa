// Command htmlshot renders HTML to images.
package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/JakeFAU/htmlshot/cmd"
)

func main() {
	cmd.Execute()
}
