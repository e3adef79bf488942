package codes

// Tool names used as keys into the exit code tables
const (
	Git      = "git"
	Composer = "composer"
)

// shellCodes are reported by the shell or exec layer regardless of the tool
var shellCodes = map[int]string{
	126: "Command found but not executable",
	127: "Command not found",
	130: "Interrupted",
	137: "Killed",
}

// ErrorCodes maps tool exit codes to their descriptions
var ErrorCodes = map[string]map[int]string{
	Git: {
		0:   "Success",
		1:   "General failure",
		128: "Fatal error (bad repository, unknown revision or network failure)",
		129: "Invalid usage",
	},
	Composer: {
		0: "Success",
		1: "General failure",
		2: "Dependency solving error",
	},
}

// IsSuccess returns true if the exit code indicates the tool succeeded
func IsSuccess(code int) bool {
	return code == 0
}

// GetErrorMessage returns the description for a tool's exit code, or a generic message if unknown
func GetErrorMessage(tool string, code int) string {
	if msg, ok := ErrorCodes[tool][code]; ok {
		return msg
	}

	if msg, ok := shellCodes[code]; ok {
		return msg
	}

	return "Unknown error"
}
