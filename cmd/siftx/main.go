// siftx runs analysis scripts against platform course data and delivers
// their output to the dashboard storage.
package main

import "github.com/siftworks/siftx/internal/cmd"

func main() {
	cmd.Execute()
}
