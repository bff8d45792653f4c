package pipeline

// State is a step of one pipeline run.
type State int

const (
	StateIdle State = iota
	StateDirectoryEnsured
	StateAgentRunning
	StateAgentSucceeded
	StateAgentFailed
	StateFileFound
	StateFileMissing
	StateLoggedError
	StateSchemaFailed
	StateLoadFailed
	StateLoaded
	StateBrowserClosed
	StateDone
)

var stateNames = map[State]string{
	StateIdle:             "idle",
	StateDirectoryEnsured: "directory_ensured",
	StateAgentRunning:     "agent_running",
	StateAgentSucceeded:   "agent_succeeded",
	StateAgentFailed:      "agent_failed",
	StateFileFound:        "file_found",
	StateFileMissing:      "file_missing",
	StateLoggedError:      "logged_error",
	StateSchemaFailed:     "schema_failed",
	StateLoadFailed:       "load_failed",
	StateLoaded:           "loaded",
	StateBrowserClosed:    "browser_closed",
	StateDone:             "done",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}
