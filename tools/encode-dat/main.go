// encode-dat wraps a media file in a container, for building test fixtures.
//
//	encode-dat INPUT OUTPUT xor|v1|v2 XORKEY [AESKEY]
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/YoshihikoAbe/wxmedia/dat"
)

func main() {
	if len(os.Args) < 5 {
		fmt.Fprintln(os.Stderr, "usage: encode-dat INPUT OUTPUT xor|v1|v2 XORKEY [AESKEY]")
		os.Exit(2)
	}
	in, _ := os.ReadFile(os.Args[1])
	xor, err := strconv.ParseUint(os.Args[4], 0, 8)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var out []byte
	switch os.Args[3] {
	case "xor":
		out = dat.DecryptXOR(in, byte(xor))
	case "v1":
		out, err = dat.EncryptV4(in, dat.SigV1, byte(xor), dat.V1Key, 1024, 1024)
	case "v2":
		if len(os.Args) < 6 {
			err = fmt.Errorf("v2 needs an AES key")
			break
		}
		out, err = dat.EncryptV4(in, dat.SigV2, byte(xor), []byte(os.Args[5]), 1024, 1024)
	default:
		err = fmt.Errorf("unknown generation: %s", os.Args[3])
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.WriteFile(os.Args[2], out, 0644)
}
