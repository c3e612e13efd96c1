package policy

import "strings"

// Fixed, code-maintained dangerous-target lists. These are matched
// independently of the whitelist and always force the approval gate:
// dangerous-target status cannot be configured away. Extend the lists here,
// never via configuration.

// dangerousPathFragments are substrings of a resolved absolute path that mark
// credential stores, system configuration, and raw devices.
var dangerousPathFragments = []string{
	// Credential and key material
	"/.ssh/",
	"/.ssh",
	"/.gnupg",
	"/.aws",
	"/.kube/config",
	"id_rsa",
	"id_ed25519",
	".pem",
	"credentials",
	".netrc",
	".npmrc",
	".pypirc",

	// System configuration
	"/etc/shadow",
	"/etc/sudoers",
	"/etc/passwd",
	"/etc/ssh",
	"/boot/",

	// Raw devices and kernel interfaces
	"/dev/sd",
	"/dev/nvme",
	"/dev/vd",
	"/dev/mem",
	"/dev/kmem",
	"/proc/sys/",
	"/sys/",
}

// dangerousCommandVerbs are substrings of a command line that indicate
// destructive or privilege-changing intent.
var dangerousCommandVerbs = []string{
	"rm -rf",
	"rm -fr",
	"rm -r ",
	"mkfs",
	"dd if=",
	"dd of=",
	"shred",
	"chmod -R",
	"chmod -r",
	"chown -R",
	"chown -r",
	"kill -9",
	"killall",
	"pkill",
	"sudo ",
	"doas ",
	"su -",
	"shutdown",
	"reboot",
	"poweroff",
	"halt",
	"init 0",
	"init 6",
	":(){",
	"> /dev/",
	"curl | sh",
	"curl|sh",
	"| sh",
	"| bash",
}

// dangerousPath reports whether a resolved path hits the fixed dangerous
// list, returning the matched fragment for logging.
func dangerousPath(resolved string) (string, bool) {
	lower := strings.ToLower(resolved)
	for _, frag := range dangerousPathFragments {
		if strings.Contains(lower, frag) {
			return frag, true
		}
	}
	return "", false
}

// dangerousCommand reports whether a command line hits the fixed dangerous
// verb list, returning the matched verb for logging.
func dangerousCommand(cmd string) (string, bool) {
	lower := strings.ToLower(cmd)
	for _, verb := range dangerousCommandVerbs {
		if strings.Contains(lower, strings.ToLower(verb)) {
			return verb, true
		}
	}
	return "", false
}
