package exec

import "strings"

// denyList contains substrings that must not appear in command lines before
// execution. Agents propose arbitrary commands; destructive ones are refused
// up front rather than sandboxed after the fact.
var denyList = []string{
	"rm -rf /",
	"rm -rf .git",
	"rm -rf ~",
	"chmod 777",
	"curl | sh",
	"wget | sh",
	"curl | bash",
	"wget | bash",
	"| sh",
	"| bash",
	"eval $(",
	"> /dev/sd",
	"mkfs.",
	"dd if=",
	"shutdown",
	"reboot",
	":(){ :|:& };:", // fork bomb
}

// Blocked reports whether the command line contains a denied substring.
// Matching is case-insensitive.
func Blocked(command string, args []string) bool {
	line := strings.ToLower(strings.TrimSpace(command + " " + strings.Join(args, " ")))
	for _, deny := range denyList {
		if strings.Contains(line, strings.ToLower(deny)) {
			return true
		}
	}
	return false
}
