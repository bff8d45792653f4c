package types

// DownloadRequest describes one invocation of a browser driver.
type DownloadRequest struct {
	// SourceURL is the corporate actions page to open.
	SourceURL string
	// Task is the natural-language instruction handed to agent drivers.
	Task string
	// DownloadDir is the absolute directory downloads must land in.
	DownloadDir string
	// ExpectedFile is the dated file the loader will read back.
	ExpectedFile string
	// FilePrefix and DateStamp name the per-tab files of scripted drivers.
	FilePrefix string
	DateStamp  string
	// Tabs are the sub-tabs downloaded after the default one.
	Tabs []string
	// MaxSteps bounds the number of browser actions.
	MaxSteps int
}

// DownloadResult is what a driver reports back after Download returns.
type DownloadResult struct {
	Success bool     `json:"success"`
	Steps   int      `json:"steps"`
	Files   []string `json:"downloads,omitempty"`
	Errors  []string `json:"errors,omitempty"`
	// Output holds the raw collaborator summary, if any.
	Output     any    `json:"output,omitempty"`
	OutputFile string `json:"output_file,omitempty"`
}
