package cfg

type Cfg struct {
	// State
	Database        string
	DatabaseBackend string

	// Delivery
	Maildir          string
	FeedsFile        string
	Strip            bool
	StripProgram     string
	Links            bool
	FilterDuplicated []string

	// Fetching
	UserAgent string

	// Application metadata
	Timezone string
	Silent   bool
	Debug    bool
	Version  string
}
