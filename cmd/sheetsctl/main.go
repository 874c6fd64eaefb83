// Command sheetsctl runs the owner level data fixes and imports against the
// gymsheets database, outside the http service.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(&app{}).Execute(); err != nil {
		os.Exit(1)
	}
}
