//go:build linux

package storage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

var linuxFSTypes = map[uint64]string{
	unix.NFS_SUPER_MAGIC:   "nfs",
	unix.SMB_SUPER_MAGIC:   "smbfs",
	unix.SMB2_SUPER_MAGIC:  "smb2",
	unix.CIFS_SUPER_MAGIC:  "cifs",
	unix.FUSE_SUPER_MAGIC:  "fuse",
	unix.EXT4_SUPER_MAGIC:  "ext4",
	unix.TMPFS_MAGIC:       "tmpfs",
	unix.BTRFS_SUPER_MAGIC: "btrfs",
	unix.XFS_SUPER_MAGIC:   "xfs",
}

func filesystemType(path string) (string, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return "", fmt.Errorf("statfs %q: %w", path, err)
	}
	magic := uint64(st.Type)
	if name, ok := linuxFSTypes[magic]; ok {
		return name, nil
	}
	return fmt.Sprintf("0x%x", magic), nil
}
