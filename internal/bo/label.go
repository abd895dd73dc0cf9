// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bo

import "encoding/binary"

// Label names a byte order for diagnostic output, e.g. in mps-fuzz's
// loopback harness summary. (D)TLS wire integers are always big-endian
// on the wire regardless of host order; this is purely informational.
func Label(o binary.ByteOrder) string {
	switch o {
	case binary.BigEndian:
		return "big-endian"
	case binary.LittleEndian:
		return "little-endian"
	default:
		return "unknown"
	}
}
