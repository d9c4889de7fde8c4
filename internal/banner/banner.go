package banner

import (
	"fmt"
	"io"
)

const Version = "1.0.0"

// Fprint writes the startup banner with the storage mode and queue name.
func Fprint(w io.Writer, mode, queueName string) {
	banner := `
   ____          __          ___
  / __ \_______/ /__ ____  / _ )__ _____
 / /_/ / __/ _  / -_) __/ / _  / // (_-<
 \____/_/  \_,_/\__/_/   /____/\_,_/___/
          v%s - Async Order Pipeline
    `
	fmt.Fprintf(w, banner, Version)
	fmt.Fprintf(w, "\n  storage: %s | queue: %s\n", mode, queueName)
	fmt.Fprintln(w, "------------------------------------------------")
}
