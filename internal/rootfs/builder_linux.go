// Package rootfs implements the six-step filesystem construction
// sequence described in spec.md section 4.3: private bind-mount, spec
// mounts, configured devices, default devices, default symlinks, and
// pivot. It runs inside the child, after the child has entered its new
// mount namespace but before exec.
package rootfs

import (
	"fmt"
	"os"
	"strings"

	mapset "github.com/deckarep/golang-set"
	units "github.com/docker/go-units"
	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/mrunalp/fileutils"
	"github.com/moby/sys/mountinfo"
	"golang.org/x/sys/unix"

	cerrors "github.com/greenhandatsjtu/pura/internal/errors"
	"github.com/greenhandatsjtu/pura/internal/oci"
)

// Build runs the full sequence against rootfs for the given spec
// mounts/devices. Each step's failure is returned as-is; callers (the
// clone driver's child path) are responsible for reporting it over the
// init-lock before exiting.
func Build(rootfsPath string, mounts []oci.Mount, devices []oci.Device, propagation string) error {
	if err := bindPrivate(rootfsPath, propagation); err != nil {
		return err
	}
	if err := applyMounts(rootfsPath, mounts); err != nil {
		return err
	}
	if err := createDevices(rootfsPath, devices); err != nil {
		return err
	}
	if err := createDefaultDevices(rootfsPath); err != nil {
		return err
	}
	if err := createDefaultSymlinks(rootfsPath); err != nil {
		return err
	}
	return nil
}

// bindPrivate bind-mounts rootfs onto itself, then remounts with
// propagation set to private (or the spec override) so that later
// mounts inside the container don't leak onto the host mount tree.
// Before remounting it consults /proc/self/mountinfo the way runc's
// rootfs_linux.go does, so a rootfs that is already a private mount
// point isn't redundantly bound.
func bindPrivate(rootfsPath, propagation string) error {
	already, err := isAlreadyPrivate(rootfsPath)
	if err != nil {
		// Non-fatal: mountinfo parsing is a best-effort optimization,
		// not a correctness requirement — fall through and bind anyway.
		already = false
	}

	if !already {
		if err := unix.Mount(rootfsPath, rootfsPath, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
			return cerrors.Wrap(cerrors.Runtime, "bind-mount rootfs "+rootfsPath, err)
		}
	}

	flag := propagationFlag(propagation)
	if err := unix.Mount("", rootfsPath, "", flag, ""); err != nil {
		return cerrors.Wrap(cerrors.Runtime, "set rootfs propagation", err)
	}

	return nil
}

func propagationFlag(propagation string) uintptr {
	switch propagation {
	case "shared":
		return unix.MS_SHARED | unix.MS_REC
	case "slave":
		return unix.MS_SLAVE | unix.MS_REC
	case "unbindable":
		return unix.MS_UNBINDABLE | unix.MS_REC
	default:
		return unix.MS_PRIVATE | unix.MS_REC
	}
}

func isAlreadyPrivate(rootfsPath string) (bool, error) {
	mounts, err := mountinfo.GetMounts(mountinfo.ParentsFilter(rootfsPath))
	if err != nil {
		return false, err
	}
	for _, m := range mounts {
		if m.Mountpoint == rootfsPath {
			return !strings.Contains(m.Optional, "shared:") && !strings.Contains(m.Optional, "master:"), nil
		}
	}
	return false, nil
}

// applyMounts resolves and mounts each spec.mounts entry inside the
// rootfs. Destinations are secure-joined so a mount can't escape the
// rootfs via "..", and duplicate destinations within one spec are
// rejected (the runtime-spec forbids it; the distillation just never
// said so).
func applyMounts(rootfsPath string, mounts []oci.Mount) error {
	seen := mapset.NewSet()
	for _, m := range mounts {
		if seen.Contains(m.Destination) {
			return cerrors.New(cerrors.Spec, "apply mounts", "duplicate mount destination "+m.Destination)
		}
		seen.Add(m.Destination)
	}

	for _, m := range mounts {
		dest, err := securejoin.SecureJoin(rootfsPath, m.Destination)
		if err != nil {
			return cerrors.Wrap(cerrors.Spec, "resolve mount destination "+m.Destination, err)
		}

		if err := validateMountData(m.Options); err != nil {
			return err
		}

		if err := fileutils.CreateIfNotExists(dest, isDirMount(m)); err != nil {
			return cerrors.Wrap(cerrors.Runtime, "create mount target "+dest, err)
		}

		flags, data := translateOptions(m.Options)
		if err := unix.Mount(m.Source, dest, m.Type, flags, data); err != nil {
			return cerrors.Wrap(cerrors.Runtime, fmt.Sprintf("mount %s on %s", m.Source, dest), err)
		}
	}
	return nil
}

// isDirMount reports whether the mount target should be created as a
// directory rather than a regular file. Only bind mounts of a regular
// host file need a file target; everything else (tmpfs, proc, sysfs,
// devpts, and bind mounts of a directory) gets a directory.
func isDirMount(m oci.Mount) bool {
	if m.Type != "bind" {
		return true
	}
	info, err := os.Stat(m.Source)
	if err != nil {
		return true
	}
	return info.IsDir()
}

// optionFlags maps the OCI mount option vocabulary onto kernel mount
// flags. Anything not recognized becomes part of the residual data
// string, the same fallback runc's own table uses.
var optionFlags = map[string]uintptr{
	"ro":         unix.MS_RDONLY,
	"rw":         0,
	"suid":       0,
	"nosuid":     unix.MS_NOSUID,
	"dev":        0,
	"nodev":      unix.MS_NODEV,
	"exec":       0,
	"noexec":     unix.MS_NOEXEC,
	"sync":       unix.MS_SYNCHRONOUS,
	"async":      0,
	"dirsync":    unix.MS_DIRSYNC,
	"remount":    unix.MS_REMOUNT,
	"mand":       unix.MS_MANDLOCK,
	"nomand":     0,
	"atime":      0,
	"noatime":    unix.MS_NOATIME,
	"diratime":   0,
	"nodiratime": unix.MS_NODIRATIME,
	"bind":       unix.MS_BIND,
	"rbind":      unix.MS_BIND | unix.MS_REC,
	"unbindable": unix.MS_UNBINDABLE,
	"runbindable": unix.MS_UNBINDABLE | unix.MS_REC,
	"private":    unix.MS_PRIVATE,
	"rprivate":   unix.MS_PRIVATE | unix.MS_REC,
	"shared":     unix.MS_SHARED,
	"rshared":    unix.MS_SHARED | unix.MS_REC,
	"slave":      unix.MS_SLAVE,
	"rslave":     unix.MS_SLAVE | unix.MS_REC,
	"relatime":   unix.MS_RELATIME,
	"norelatime": 0,
	"strictatime": unix.MS_STRICTATIME,
}

// translateOptions splits options into kernel mount flags and a
// residual comma-separated data string (e.g. "mode=755,size=65536k").
func translateOptions(options []string) (uintptr, string) {
	var flags uintptr
	var data []string
	for _, opt := range options {
		if f, ok := optionFlags[opt]; ok {
			flags |= f
			continue
		}
		data = append(data, opt)
	}
	return flags, strings.Join(data, ",")
}

// validateMountData checks any "size=" token in the option list is a
// well-formed byte quantity, using docker/go-units even though
// resource enforcement itself is out of scope: a malformed size is
// still a spec error worth catching before mount(2) rejects it with an
// opaque EINVAL.
func validateMountData(options []string) error {
	for _, opt := range options {
		if !strings.HasPrefix(opt, "size=") {
			continue
		}
		val := strings.TrimPrefix(opt, "size=")
		if _, err := units.RAMInBytes(val); err != nil {
			return cerrors.Wrap(cerrors.Spec, "parse mount option "+opt, err)
		}
	}
	return nil
}

// createDevices creates each device in linux.devices at its configured
// path inside rootfs, via mknod + chown/chmod.
func createDevices(rootfsPath string, devices []oci.Device) error {
	for _, d := range devices {
		if err := createDevice(rootfsPath, d); err != nil {
			return err
		}
	}
	return nil
}

func createDevice(rootfsPath string, d oci.Device) error {
	dest, err := securejoin.SecureJoin(rootfsPath, d.Path)
	if err != nil {
		return cerrors.Wrap(cerrors.Spec, "resolve device path "+d.Path, err)
	}

	mode, err := deviceMode(d.Type)
	if err != nil {
		return cerrors.Wrap(cerrors.Spec, "device type for "+d.Path, err)
	}

	fileMode := os.FileMode(0666)
	if d.FileMode != 0 {
		fileMode = os.FileMode(d.FileMode)
	}

	dev := unix.Mkdev(uint32(d.Major), uint32(d.Minor))
	if err := unix.Mknod(dest, mode|uint32(fileMode), int(dev)); err != nil {
		if err == unix.EEXIST {
			return nil
		}
		return cerrors.Wrap(cerrors.Runtime, "mknod "+dest, err)
	}

	if err := unix.Chown(dest, int(d.UID), int(d.GID)); err != nil {
		return cerrors.Wrap(cerrors.Runtime, "chown "+dest, err)
	}

	if err := unix.Chmod(dest, uint32(fileMode)); err != nil {
		return cerrors.Wrap(cerrors.Runtime, "chmod "+dest, err)
	}

	return nil
}

func deviceMode(t string) (uint32, error) {
	switch t {
	case "c", "u":
		return unix.S_IFCHR, nil
	case "b":
		return unix.S_IFBLK, nil
	case "p":
		return unix.S_IFIFO, nil
	default:
		return 0, fmt.Errorf("unsupported device type %q", t)
	}
}

// defaultDevice is one of the conventional devices spec.md section 4.3
// step 4 requires to exist regardless of what linux.devices specifies.
type defaultDevice struct {
	path        string
	major, minor int64
}

var defaultDevices = []defaultDevice{
	{"/dev/null", 1, 3},
	{"/dev/zero", 1, 5},
	{"/dev/full", 1, 7},
	{"/dev/random", 1, 8},
	{"/dev/urandom", 1, 9},
	{"/dev/tty", 5, 0},
}

// createDefaultDevices creates the conventional OCI default device set.
// Creation is idempotent: an existing node is left alone rather than
// treated as an error (resolving spec.md section 8's open point on
// idempotence).
func createDefaultDevices(rootfsPath string) error {
	for _, d := range defaultDevices {
		if err := createDevice(rootfsPath, oci.Device{
			Path:  d.path,
			Type:  "c",
			Major: d.major,
			Minor: d.minor,
		}); err != nil {
			return err
		}
	}
	return nil
}

// defaultSymlink is one entry of the conventional OCI default symlink
// set (spec.md section 4.3 step 5).
type defaultSymlink struct {
	target string
	link   string
}

var defaultSymlinks = []defaultSymlink{
	{"/proc/self/fd", "/dev/fd"},
	{"/proc/self/fd/0", "/dev/stdin"},
	{"/proc/self/fd/1", "/dev/stdout"},
	{"/proc/self/fd/2", "/dev/stderr"},
	{"/proc/kcore", "/dev/core"},
}

func createDefaultSymlinks(rootfsPath string) error {
	for _, s := range defaultSymlinks {
		link, err := securejoin.SecureJoin(rootfsPath, s.link)
		if err != nil {
			return cerrors.Wrap(cerrors.Runtime, "resolve symlink "+s.link, err)
		}
		if err := os.Symlink(s.target, link); err != nil && !os.IsExist(err) {
			return cerrors.Wrap(cerrors.Runtime, "symlink "+link, err)
		}
	}
	return nil
}

// Pivot performs the final step of spec.md section 4.3: chdir into
// rootfs, pivot_root(".", "."), detach-unmount the old root, chdir to
// the new "/". This is a distinct operation from bindPrivate — the
// anomaly noted in spec.md section 9 (the source calls the bind-mount
// routine twice) is resolved by never repeating step 1 here.
func Pivot(rootfsPath string) error {
	oldroot, err := os.Open("/")
	if err != nil {
		return cerrors.Wrap(cerrors.Runtime, "open /", err)
	}
	defer oldroot.Close()

	if err := unix.Chdir(rootfsPath); err != nil {
		return cerrors.Wrap(cerrors.Runtime, "chdir "+rootfsPath, err)
	}

	if err := unix.PivotRoot(".", "."); err != nil {
		return cerrors.Wrap(cerrors.Runtime, "pivot_root", err)
	}

	if err := unix.Fchdir(int(oldroot.Fd())); err != nil {
		return cerrors.Wrap(cerrors.Runtime, "fchdir old root", err)
	}

	if err := unix.Unmount(".", unix.MNT_DETACH); err != nil {
		return cerrors.Wrap(cerrors.Runtime, "detach old root", err)
	}

	if err := unix.Chdir("/"); err != nil {
		return cerrors.Wrap(cerrors.Runtime, "chdir /", err)
	}

	return nil
}
