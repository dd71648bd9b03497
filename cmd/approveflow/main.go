// Command approveflow runs approval chain scenarios against a CRM.
package main

import (
	"fmt"
	"os"

	"github.com/Dicklesworthstone/approveflow/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
