package daemon

import (
	"encoding/hex"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

const appID = "drivelink"

// MachineIdentity derives the default drive name and board ID from the
// machine ID. The ID is hashed with the application ID so it's not
// exposed on the network.
func MachineIdentity() (name string, boardID byte) {
	id, err := machineid.ProtectedID(appID)
	if err != nil {
		glog.Warningf("machine id: %v", err)
		return "drive", 0
	}
	return identityFromID(id)
}

func identityFromID(id string) (string, byte) {
	raw, err := hex.DecodeString(id)
	if err != nil || len(raw) == 0 {
		return "drive", 0
	}
	if len(raw) > 4 {
		raw = raw[:4]
	}
	return "drive-" + hex.EncodeToString(raw), raw[0]
}
