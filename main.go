// Command logohunter finds the best logo of a website.
package main

import (
	"github.com/JakeFAU/logohunter/cmd"
)

func main() {
	cmd.Execute()
}
