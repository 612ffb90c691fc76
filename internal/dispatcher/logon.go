package dispatcher

import (
	"strconv"
	"strings"

	"github.com/vax11/almmmost/internal/diskparam"
)

// doLogon implements the (sor=0, op='C'/'L') logon request, per spec.md
// §4.6/§6.1 and original_source/almmmost/almmmost_misc.c's alm_do_logon.
// passwd is the 128-byte inbound block, whose first 8 bytes hold a
// space-padded "DIR<n>" ASCII token naming the private directory slot to
// select on drive. Returns retcode=0 on success, 1 otherwise.
func (d *Disp) doLogon(port, drive int, passwd [128]byte) byte {
	if drive < 0 || drive >= len(d.Engine.Disks) || d.Engine.Disks[drive] == nil {
		return 1
	}
	disk := d.Engine.Disks[drive]
	if disk.Params.Kind != diskparam.Private {
		return 1
	}

	token := string(passwd[0:8])
	if sp := strings.IndexByte(token, ' '); sp >= 0 {
		token = token[:sp]
	}
	if len(token) < 4 || !strings.EqualFold(token[0:3], "DIR") {
		return 1
	}
	dest, err := strconv.Atoi(token[3:])
	if err != nil || dest < 0 || dest >= len(disk.Slots) || disk.Slots[dest] == nil {
		return 1
	}

	for p, info := range d.Engine.Ports {
		if p != port && drive < len(info.DriveDir) && info.DriveDir[drive] == dest {
			return 1
		}
	}

	d.Engine.Ports[port].DriveDir[drive] = dest
	return 0
}
