// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/inkdeck/inkdeck/cmd/inkdeck"

func main() {
	cmd.Execute()
}
