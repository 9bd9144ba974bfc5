package cmd

import (
	"fmt"
	"io"
)

const banner = `
  _____            __     __    _ _                _    ___ 
 |  ___|____  __   \ \   / /_ _| | | ___ _   _    / \  |_ _|
 | |_ / _ \ \/ /    \ \ / / _` + "`" + ` | | |/ _ \ | | |  / _ \  | | 
 |  _| (_) >  <      \ V / (_| | | |  __/ |_| | / ___ \ | | 
 |_|  \___/_/\_\      \_/ \__,_|_|_|\___|\__, |/_/   \_\___|
                                         |___/              
`

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  Website backend - Version %s\x1b[0m\n\n", Version)
}
