//go:build !linux

package enforce

import "errors"

func openNFTables(string, string) (Backend, error) {
	return nil, errors.New("nftables backend requires linux")
}
