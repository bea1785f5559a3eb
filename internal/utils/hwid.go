package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"os"

	"github.com/denisbrodbeck/machineid"
)

const hwidAppID = "docbox"

// HWID is a stable, app scoped device identifier sent with every API request.
var HWID = deviceID()

func deviceID() string {
	if id, err := machineid.ProtectedID(hwidAppID); err == nil {
		return id
	}

	// containers and sandboxes often have no machine id
	host, _ := os.Hostname()
	sum := sha256.Sum256([]byte(hwidAppID + ":" + host))
	return hex.EncodeToString(sum[:])
}
