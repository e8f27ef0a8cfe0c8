package schemas

import "time"

// -- Test Case Schemas --

// TestCase is one row of the tabular test-case source. TestID is the join key
// for filtering, ordering and file naming.
type TestCase struct {
	TestID       string `json:"test_id"`
	Purpose      string `json:"purpose"`
	Precondition string `json:"precondition"`
	Expected     string `json:"expected"`
}

// GenerationResult records the outcome of generating one test script.
type GenerationResult struct {
	TestID   string `json:"test_id"`
	Success  bool   `json:"success"`
	FilePath string `json:"file_path,omitempty"`
	Error    string `json:"error,omitempty"`
}

// GenerationRequest is what a code generator needs for one script.
type GenerationRequest struct {
	Case      TestCase         `json:"case"`
	TargetURL string           `json:"target_url"`
	Catalog   *SelectorCatalog `json:"catalog,omitempty"`
}

// -- Selector Catalog Schemas --

// SelectorEntry is one discovered selector on a page.
type SelectorEntry struct {
	Kind       string `json:"kind"`
	Selector   string `json:"selector"`
	SampleText string `json:"sampleText,omitempty"`
}

// PageSelectors groups the selectors found on one page.
type PageSelectors struct {
	Path      string          `json:"path"`
	URL       string          `json:"url"`
	Selectors []SelectorEntry `json:"selectors"`
}

// SelectorCatalog is an optional hint file for generation.
type SelectorCatalog struct {
	ScannedAt time.Time       `json:"scannedAt"`
	BaseURL   string          `json:"baseUrl"`
	Pages     []PageSelectors `json:"pages"`
}

// -- Run Schemas --

// RunMode names how a batch was selected.
type RunMode string

const (
	RunModeAll      RunMode = "all"
	RunModeExplicit RunMode = "explicit"
	RunModeScenario RunMode = "scenario"
	RunModeFrom     RunMode = "from"
)

// RunRecord is one executed batch, as stored in the run ledger.
type RunRecord struct {
	RunID      string    `json:"run_id"`
	Mode       RunMode   `json:"mode"`
	TestIDs    []string  `json:"test_ids"`
	ExitCode   int       `json:"exit_code"`
	TestCount  int       `json:"test_count"`
	Failures   int       `json:"failures"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
