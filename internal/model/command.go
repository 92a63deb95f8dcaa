package model

// Command names understood by the privileged executor.
const (
	CommandPing           = "ping"
	CommandShutdown       = "shutdown"
	CommandGetStatus      = "getStatus"
	CommandPatchEnable    = "patchEnable"
	CommandPatchRestore   = "patchRestore"
	CommandSetPersistence = "setPersistence"
	CommandSetExclusion   = "setExclusion"
	CommandCheckUpdates   = "checkUpdates"
	CommandSaveLog        = "saveLog"
)

type ToggleParams struct {
	Enable bool `json:"enable"`
}

type SaveLogParams struct {
	Text string `json:"text"`
}

// MessageResult is the payload of every mutating command.
type MessageResult struct {
	Message string `json:"message"`
}

type SaveLogResult struct {
	Destination string `json:"destination"`
}

// ToggleCommand maps a toggle and its target value onto the executor command.
func ToggleCommand(op Operation, enable bool) string {
	switch op {
	case OpPatch:
		if enable {
			return CommandPatchEnable
		}
		return CommandPatchRestore
	case OpPersistence:
		return CommandSetPersistence
	case OpExclusion:
		return CommandSetExclusion
	}
	return ""
}
