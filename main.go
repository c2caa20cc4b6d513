// Command comic-crawler ingests Penny Arcade issues and extracts their panel text.
package main

import (
	"github.com/JakeFAU/comic-crawler/cmd"
)

func main() {
	cmd.Execute()
}
