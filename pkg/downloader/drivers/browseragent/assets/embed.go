package assets

import (
	"embed"
	"path"
)

//go:embed all:agent_scripts
var agentScriptsFS embed.FS

const (
	agentDirInEmbed  = "agent_scripts"
	RunScriptFile    = "run.sh"
	MainPyFile       = "main.py"
	RequirementsFile = "requirements.txt"
)

// ScriptFiles are extracted into every agent run directory.
var ScriptFiles = []string{RunScriptFile, MainPyFile}

func GetAgentScriptContent(filename string) ([]byte, error) {
	return agentScriptsFS.ReadFile(path.Join(agentDirInEmbed, filename))
}
