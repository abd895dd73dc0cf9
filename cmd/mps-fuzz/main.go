// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command mps-fuzz drives a Layer 3 handshake round trip over an
// in-memory record layer, exercising the Writer/Reader brokerage,
// pause/resume, and DTLS fragmentation paths without any real network
// or cryptographic transport.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:     "mps-fuzz",
	Short:   "Drive MPS Layer 3 round trips over a simulated record layer",
	Version: "0.1.0",
}

func init() {
	rootCmd.AddCommand(roundtripCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}
