//go:build !linux && !darwin

package status

import "errors"

func diskFree(path string) (uint64, error) {
	return 0, errors.New("disk usage not supported on this platform")
}
